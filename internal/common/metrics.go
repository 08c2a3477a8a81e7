package common

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Metrics aggregates per-capture counters. The reactor thread is the
// only writer during a session; the mutex covers snapshot readers such
// as the HTTP stats handler.
type Metrics struct {
	mu          sync.Mutex
	start       time.Time
	end         time.Time
	fragments   int64
	bytes       int64
	drops       int64
	retransmits int64
	acks        int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Start() {
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
		m.end = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
	m.mu.Unlock()
}

// AddFragment records one accepted fragment and the log bytes it
// contributed.
func (m *Metrics) AddFragment(size int64) {
	m.mu.Lock()
	m.fragments++
	if size > 0 {
		m.bytes += size
	}
	m.mu.Unlock()
}

func (m *Metrics) IncDrop() {
	m.mu.Lock()
	m.drops++
	m.mu.Unlock()
}

func (m *Metrics) IncRetransmit() {
	m.mu.Lock()
	m.retransmits++
	m.mu.Unlock()
}

func (m *Metrics) IncAck() {
	m.mu.Lock()
	m.acks++
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Duration:    m.elapsedLocked(),
		Fragments:   m.fragments,
		Bytes:       m.bytes,
		Drops:       m.drops,
		Retransmits: m.retransmits,
		Acks:        m.acks,
	}
}

func (m *Metrics) elapsedLocked() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

type MetricsSnapshot struct {
	Duration    time.Duration `json:"duration"`
	Fragments   int64         `json:"fragments"`
	Bytes       int64         `json:"bytes"`
	Drops       int64         `json:"drops"`
	Retransmits int64         `json:"retransmits"`
	Acks        int64         `json:"acks"`
}

func (s MetricsSnapshot) ThroughputBytesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Duration.Seconds()
}

func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div := float64(unit)
	exp := 0
	for n := float64(b) / div; n >= unit && exp < 6; n /= unit {
		div *= unit
		exp++
	}
	prefixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	return fmt.Sprintf("%.2f %s", float64(b)/div, prefixes[exp])
}

func formatStatisticsLine(name string, s MetricsSnapshot) string {
	return fmt.Sprintf("%s: %d fragments, %s written, %d drops, %d retransmits, %d acks, %.2f KiB/s",
		name, s.Fragments, FormatBytes(s.Bytes), s.Drops, s.Retransmits, s.Acks,
		s.ThroughputBytesPerSecond()/1024)
}

// StartStatisticsPrinter logs a statistics line for the capture at the
// given interval until the returned stop function runs. snap is called
// per tick so a capture created mid-run is picked up.
func StartStatisticsPrinter(w io.Writer, name string, snap func() MetricsSnapshot, interval time.Duration) func() {
	if snap == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fmt.Fprintln(w, formatStatisticsLine(name, snap()))
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
