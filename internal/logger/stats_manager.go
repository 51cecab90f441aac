package logger

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// StatsManager periodically logs the totals, deltas and rates of a set of
// named counters (frames received, frames sent, faulted links, ...).
type StatsManager struct {
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	counters map[string]*atomic.Uint64
	prev     map[string]uint64
	mu       sync.Mutex
}

// NewStatsManager creates a new stats manager logging every intervalSec seconds.
func NewStatsManager(intervalSec int) *StatsManager {
	if intervalSec <= 0 {
		intervalSec = 30
	}
	return &StatsManager{
		interval: time.Duration(intervalSec) * time.Second,
		stopCh:   make(chan struct{}),
		counters: make(map[string]*atomic.Uint64),
		prev:     make(map[string]uint64),
	}
}

// RegisterCounter registers a counter and returns it for lock-free increments.
// Registering the same name twice returns the same counter.
func (sm *StatsManager) RegisterCounter(name string) *atomic.Uint64 {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.counters[name]; !exists {
		sm.counters[name] = &atomic.Uint64{}
	}
	return sm.counters[name]
}

// Start begins the periodic logging loop
func (sm *StatsManager) Start() {
	sm.wg.Add(1)
	go sm.run()
}

// Stop stops the logging loop. Safe to call more than once.
func (sm *StatsManager) Stop() {
	sm.stopOnce.Do(func() { close(sm.stopCh) })
	sm.wg.Wait()
}

func (sm *StatsManager) run() {
	defer sm.wg.Done()
	ticker := time.NewTicker(sm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.stopCh:
			return
		case <-ticker.C:
			if line := sm.Report(); line != "" {
				Info("[STATS] %s", line)
			}
		}
	}
}

// Report renders "name: total (+diff, rate/s)" for every counter in name
// order and advances the baseline used for the next diff.
func (sm *StatsManager) Report() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	names := make([]string, 0, len(sm.counters))
	for name := range sm.counters {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	intervalSec := sm.interval.Seconds()
	for _, name := range names {
		current := sm.counters[name].Load()
		diff := current - sm.prev[name]
		sm.prev[name] = current
		parts = append(parts, fmt.Sprintf("%s: %d (+%d, %.1f/s)", name, current, diff, float64(diff)/intervalSec))
	}
	return strings.Join(parts, " | ")
}
