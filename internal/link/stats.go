package link

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

// trafficStats turns byte accumulators into per second rates. The mutex
// is only held for counter reads and swaps.
type trafficStats struct {
	mu        deadlock.Mutex
	interval  time.Duration
	lastReset time.Time

	rxAcc, txAcc   uint64
	rxRate, txRate uint64
}

func newTrafficStats(interval time.Duration, now time.Time) *trafficStats {
	if interval <= 0 {
		interval = time.Second
	}
	return &trafficStats{interval: interval, lastReset: now}
}

func (s *trafficStats) addReceived(n int) {
	s.mu.Lock()
	s.rxAcc += uint64(n)
	s.mu.Unlock()
}

func (s *trafficStats) addSent(n int) {
	s.mu.Lock()
	s.txAcc += uint64(n)
	s.mu.Unlock()
}

// rotate publishes the accumulated totals as rates once interval elapsed.
func (s *trafficStats) rotate(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := now.Sub(s.lastReset)
	if elapsed < s.interval {
		return
	}
	s.rxRate = perSecond(s.rxAcc, elapsed)
	s.txRate = perSecond(s.txAcc, elapsed)
	s.rxAcc, s.txAcc = 0, 0
	s.lastReset = now
}

func perSecond(total uint64, elapsed time.Duration) uint64 {
	return uint64(float64(total) / elapsed.Seconds())
}

func (s *trafficStats) rates() (rx, tx uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rxRate, s.txRate
}
