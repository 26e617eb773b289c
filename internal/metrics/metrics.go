package metrics

import (
	"sync"
	"time"
)

// Store accumulates in-process counters. It is safe for concurrent use and
// resets when the process restarts.
type Store struct {
	mu             sync.Mutex
	requestsByCode map[int]int64
	totalLatency   time.Duration
	requestCount   int64
	planRuns       int64
	planLatency    time.Duration
	lintRuns       int64
	lintLatency    time.Duration
}

func NewStore() *Store {
	return &Store{requestsByCode: map[int]int64{}}
}

func (s *Store) ObserveRequest(status int, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestsByCode[status]++
	s.requestCount++
	s.totalLatency += latency
}

func (s *Store) ObservePlan(latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.planRuns++
	s.planLatency += latency
}

func (s *Store) ObserveLint(latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lintRuns++
	s.lintLatency += latency
}

// Snapshot is a point-in-time copy suitable for JSON encoding.
type Snapshot struct {
	RequestsByStatus    map[int]int64 `json:"requests_by_status"`
	RequestCount        int64         `json:"request_count"`
	AvgRequestLatencyMS float64       `json:"avg_request_latency_ms"`
	PlanRuns            int64         `json:"plan_runs"`
	AvgPlanLatencyMS    float64       `json:"avg_plan_latency_ms"`
	LintRuns            int64         `json:"lint_runs"`
	AvgLintLatencyMS    float64       `json:"avg_lint_latency_ms"`
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	byCode := make(map[int]int64, len(s.requestsByCode))
	for code, n := range s.requestsByCode {
		byCode[code] = n
	}
	return Snapshot{
		RequestsByStatus:    byCode,
		RequestCount:        s.requestCount,
		AvgRequestLatencyMS: avgMS(s.totalLatency, s.requestCount),
		PlanRuns:            s.planRuns,
		AvgPlanLatencyMS:    avgMS(s.planLatency, s.planRuns),
		LintRuns:            s.lintRuns,
		AvgLintLatencyMS:    avgMS(s.lintLatency, s.lintRuns),
	}
}

func avgMS(total time.Duration, n int64) float64 {
	if n == 0 {
		return 0
	}
	return float64(total.Milliseconds()) / float64(n)
}
