package stats

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// minLatencySamples is the minimum number of ping round-trips recorded
// before AverageLatency reports a non-zero value, per spec.md §3
// ("a rolling average ... with a minimum sample count before a value is
// reported").
const minLatencySamples = 5

// latencyWindow bounds how many recent samples feed the rolling average.
const latencyWindow = 20

// Stats holds the atomic, monotonic connection counters for one relay plus
// a bounded rolling latency tracker. All fields are safe for concurrent use
// without an external lock.
type Stats struct {
	AttemptsCount  atomic.Uint64
	SuccessCount   atomic.Uint64
	BytesSent      atomic.Uint64
	BytesReceived  atomic.Uint64
	FirstConnectAt atomic.Int64 // unix nanos, 0 if never connected
	LastConnectAt  atomic.Int64

	mu      sync.Mutex
	samples []time.Duration
}

// RecordAttempt increments the connection-attempt counter.
func (s *Stats) RecordAttempt() { s.AttemptsCount.Inc() }

// RecordConnected increments the success counter and stamps connection
// timestamps (first one sticks, last one always updates).
func (s *Stats) RecordConnected(at time.Time) {
	s.SuccessCount.Inc()
	s.FirstConnectAt.CompareAndSwap(0, at.UnixNano())
	s.LastConnectAt.Store(at.UnixNano())
}

// AddBytesSent/AddBytesReceived accumulate wire traffic counters.
func (s *Stats) AddBytesSent(n int)     { s.BytesSent.Add(uint64(n)) }
func (s *Stats) AddBytesReceived(n int) { s.BytesReceived.Add(uint64(n)) }

// RecordLatency appends a ping round-trip sample to the rolling window.
func (s *Stats) RecordLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, d)
	if len(s.samples) > latencyWindow {
		s.samples = s.samples[len(s.samples)-latencyWindow:]
	}
}

// AverageLatency returns the rolling average ping latency and whether
// enough samples have been collected to trust it.
func (s *Stats) AverageLatency() (avg time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) < minLatencySamples {
		return 0, false
	}
	var total time.Duration
	for _, d := range s.samples {
		total += d
	}
	return total / time.Duration(len(s.samples)), true
}

// FirstConnection and LastConnection return zero time.Time if the relay has
// never successfully connected.
func (s *Stats) FirstConnection() time.Time {
	ns := s.FirstConnectAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (s *Stats) LastConnection() time.Time {
	ns := s.LastConnectAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
