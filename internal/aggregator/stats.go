package aggregator

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// maxSamples bounds the rolling latency window.
	maxSamples = 100
	// trimToSamples is how many of the most recent samples survive an overflow.
	trimToSamples = 50
)

// OperationSample is one routed call.
type OperationSample struct {
	ID      string         `json:"id"`
	Kind    CapabilityKind `json:"-"`
	Name    string         `json:"name"`
	Backend string         `json:"backend,omitempty"`
	Latency time.Duration  `json:"latency"`
	Success bool           `json:"success"`
	At      time.Time      `json:"at"`
}

// OperationStatistics summarizes routed calls.
type OperationStatistics struct {
	Total               int64         `json:"total"`
	Succeeded           int64         `json:"succeeded"`
	Failed              int64         `json:"failed"`
	AverageResponseTime time.Duration `json:"averageResponseTime"`
	WindowSize          int           `json:"windowSize"`
}

// operationStats keeps counters plus a bounded window of recent samples used
// for the moving average.
type operationStats struct {
	mu        sync.Mutex
	samples   []OperationSample
	total     int64
	succeeded int64
	failed    int64
}

func (s *operationStats) record(sample OperationSample) {
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	if sample.At.IsZero() {
		sample.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if sample.Success {
		s.succeeded++
	} else {
		s.failed++
	}

	s.samples = append(s.samples, sample)
	if len(s.samples) > maxSamples {
		kept := make([]OperationSample, trimToSamples)
		copy(kept, s.samples[len(s.samples)-trimToSamples:])
		s.samples = kept
	}
}

func (s *operationStats) snapshot() OperationStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := OperationStatistics{
		Total:      s.total,
		Succeeded:  s.succeeded,
		Failed:     s.failed,
		WindowSize: len(s.samples),
	}
	if len(s.samples) > 0 {
		var sum time.Duration
		for _, sample := range s.samples {
			sum += sample.Latency
		}
		stats.AverageResponseTime = sum / time.Duration(len(s.samples))
	}
	return stats
}

// recent returns a copy of the samples in the window, oldest first.
func (s *operationStats) recent() []OperationSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OperationSample, len(s.samples))
	copy(out, s.samples)
	return out
}
