package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents logging level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

var levelFromString = map[string]Level{
	"debug":   DEBUG,
	"info":    INFO,
	"warn":    WARN,
	"warning": WARN,
	"error":   ERROR,
}

type state struct {
	mu          sync.RWMutex
	level       Level
	logger      *log.Logger
	useUnixTime bool
}

var defaultLogger = &state{
	level:  INFO,
	logger: log.New(os.Stdout, "", log.LstdFlags),
}

// SetLevel sets the global log level
func SetLevel(level Level) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.level = level
}

// ParseLevel converts debug/info/warn/error into a Level.
func ParseLevel(levelStr string) (Level, bool) {
	level, ok := levelFromString[strings.ToLower(strings.TrimSpace(levelStr))]
	return level, ok
}

// SetLevelFromString sets log level from string (debug, info, warn, error).
// Unknown strings leave the level untouched.
func SetLevelFromString(levelStr string) {
	if level, ok := ParseLevel(levelStr); ok {
		SetLevel(level)
		defaultLogger.logger.Printf("[LOGGER] Log level set to %s", levelNames[level])
	}
}

// SetTimestampFormat sets timestamp format ("time" or "unix")
func SetTimestampFormat(format string) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()

	if strings.ToLower(format) == "unix" {
		defaultLogger.useUnixTime = true
		defaultLogger.logger.SetFlags(0)
	} else {
		defaultLogger.useUnixTime = false
		defaultLogger.logger.SetFlags(log.LstdFlags)
	}
}

// SetOutput redirects all log output, mostly for tests.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.logger.SetOutput(w)
}

// GetLevel returns current log level
func GetLevel() Level {
	defaultLogger.mu.RLock()
	defer defaultLogger.mu.RUnlock()
	return defaultLogger.level
}

// GetLevelString returns current log level as string
func GetLevelString() string {
	return levelNames[GetLevel()]
}

func shouldLog(level Level) bool {
	defaultLogger.mu.RLock()
	defer defaultLogger.mu.RUnlock()
	return level >= defaultLogger.level
}

func formatMessage(prefix, format string, v ...interface{}) string {
	defaultLogger.mu.RLock()
	useUnix := defaultLogger.useUnixTime
	defaultLogger.mu.RUnlock()

	if useUnix {
		return fmt.Sprintf("[%d] %s%s", time.Now().Unix(), prefix, fmt.Sprintf(format, v...))
	}
	return prefix + fmt.Sprintf(format, v...)
}

func output(level Level, tag, format string, v ...interface{}) {
	if !shouldLog(level) {
		return
	}
	prefix := "[" + levelNames[level] + "] "
	if tag != "" {
		prefix += "[" + tag + "] "
	}
	defaultLogger.logger.Print(formatMessage(prefix, format, v...))
}

// Debug logs at DEBUG level
func Debug(format string, v ...interface{}) {
	output(DEBUG, "", format, v...)
}

// Info logs at INFO level
func Info(format string, v ...interface{}) {
	output(INFO, "", format, v...)
}

// Warn logs at WARN level
func Warn(format string, v ...interface{}) {
	output(WARN, "", format, v...)
}

// Error logs at ERROR level
func Error(format string, v ...interface{}) {
	output(ERROR, "", format, v...)
}

// Fatal logs and exits
func Fatal(format string, v ...interface{}) {
	defaultLogger.logger.Print(formatMessage("[FATAL] ", format, v...))
	os.Exit(1)
}

// Scoped is a logger that prefixes every line with a component tag,
// e.g. [INFO] [LINK udpout:127.0.0.1:14550] channel opened
type Scoped struct {
	tag string
}

// New returns a logger tagged with the given component name.
func New(tag string) *Scoped {
	return &Scoped{tag: tag}
}

// With returns a child logger whose tag is extended with sub.
func (s *Scoped) With(sub string) *Scoped {
	if s.tag == "" {
		return New(sub)
	}
	return New(s.tag + " " + sub)
}

func (s *Scoped) Debug(format string, v ...interface{}) { output(DEBUG, s.tag, format, v...) }
func (s *Scoped) Info(format string, v ...interface{})  { output(INFO, s.tag, format, v...) }
func (s *Scoped) Warn(format string, v ...interface{})  { output(WARN, s.tag, format, v...) }
func (s *Scoped) Error(format string, v ...interface{}) { output(ERROR, s.tag, format, v...) }
