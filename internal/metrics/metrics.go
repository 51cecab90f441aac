package metrics

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

// Metrics holds MAVLink traffic statistics keyed by message type name
type Metrics struct {
	mu deadlock.RWMutex

	// Frame statistics
	ReceivedFrames map[string]int64
	SentFrames     map[string]int64
	FailedFrames   map[string]int64
	DroppedFrames  map[string]int64 // Received but of a type the handler ignores

	// Link lifecycle
	LinksOpened  int64
	LinksFaulted int64
	StartTime    time.Time
}

var Global *Metrics

func init() {
	Global = New()
}

func New() *Metrics {
	return &Metrics{
		ReceivedFrames: make(map[string]int64),
		SentFrames:     make(map[string]int64),
		FailedFrames:   make(map[string]int64),
		DroppedFrames:  make(map[string]int64),
		StartTime:      time.Now(),
	}
}

func (m *Metrics) IncReceived(msgType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReceivedFrames[msgType]++
}

func (m *Metrics) IncSent(msgType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentFrames[msgType]++
}

func (m *Metrics) IncFailed(msgType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailedFrames[msgType]++
}

func (m *Metrics) IncDropped(msgType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DroppedFrames[msgType]++
}

func (m *Metrics) IncLinkOpened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LinksOpened++
}

func (m *Metrics) IncLinkFaulted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LinksFaulted++
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// GetSnapshot returns copies of all counters, safe to hand to other goroutines
func (m *Metrics) GetSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"received_frames": copyCounts(m.ReceivedFrames),
		"sent_frames":     copyCounts(m.SentFrames),
		"failed_frames":   copyCounts(m.FailedFrames),
		"dropped_frames":  copyCounts(m.DroppedFrames),
		"links_opened":    m.LinksOpened,
		"links_faulted":   m.LinksFaulted,
		"uptime":          time.Since(m.StartTime).String(),
	}
}
