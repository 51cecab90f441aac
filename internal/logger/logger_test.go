package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	prev := GetLevel()
	t.Cleanup(func() {
		SetLevel(prev)
		SetOutput(os.Stdout)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", DEBUG, true},
		{"INFO", INFO, true},
		{" warn ", WARN, true},
		{"warning", WARN, true},
		{"error", ERROR, true},
		{"verbose", INFO, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

func TestScopedLoggerRespectsLevel(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(WARN)

	l := New("LINK").With("udpout:127.0.0.1:14550")
	l.Info("hidden")
	l.Warn("channel closed: %s", "eof")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] [LINK udpout:127.0.0.1:14550] channel closed: eof")
}

func TestStatsManagerReport(t *testing.T) {
	sm := NewStatsManager(2)
	rx := sm.RegisterCounter("frames_rx")
	tx := sm.RegisterCounter("frames_tx")
	assert.Same(t, rx, sm.RegisterCounter("frames_rx"))

	rx.Add(10)
	tx.Add(4)
	first := sm.Report()
	assert.Equal(t, "frames_rx: 10 (+10, 5.0/s) | frames_tx: 4 (+4, 2.0/s)", first)

	rx.Add(2)
	second := sm.Report()
	assert.True(t, strings.HasPrefix(second, "frames_rx: 12 (+2, 1.0/s)"), second)
}
