package throttle

import (
	"errors"
	"sync"
	"time"
)

var errCircuitOpen = errors.New("circuit breaker is open")

// smoothingFactor is the weight given to the newest sample when folding it
// into the exponentially-smoothed average response time.
const smoothingFactor = 0.2

// Statistics accumulates the running counters exposed by
// Client.StatisticsSnapshot, guarded by its own mutex so callers never
// need to reason about the client's internal locking.
type Statistics struct {
	mu sync.Mutex

	successes       uint64
	failures        uint64
	rejected        uint64
	avgResponseTime time.Duration
	lastRequestAt   time.Time
	requestsInLastS uint64
}

func (s *Statistics) recordSuccess(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes++
	s.foldResponseTimeLocked(elapsed)
	s.lastRequestAt = time.Now()
}

func (s *Statistics) recordFailure(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	s.foldResponseTimeLocked(elapsed)
	s.lastRequestAt = time.Now()
}

func (s *Statistics) recordRejected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected++
}

func (s *Statistics) foldResponseTimeLocked(elapsed time.Duration) {
	if s.avgResponseTime == 0 {
		s.avgResponseTime = elapsed
		return
	}
	s.avgResponseTime = time.Duration(
		smoothingFactor*float64(elapsed) + (1-smoothingFactor)*float64(s.avgResponseTime),
	)
}

func (s *Statistics) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes = 0
	s.failures = 0
	s.rejected = 0
	s.avgResponseTime = 0
	s.lastRequestAt = time.Time{}
}

// Snapshot is a point-in-time view of Client's statistics.
type Snapshot struct {
	Successes       uint64
	Failures        uint64
	Rejected        uint64
	AvgResponseTime time.Duration
	CurrentDelay    time.Duration
	SemaphoreFree   int
	QueueSize       int
	CircuitState    string
}

func (s *Statistics) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Successes:       s.successes,
		Failures:        s.failures,
		Rejected:        s.rejected,
		AvgResponseTime: s.avgResponseTime,
	}
}
