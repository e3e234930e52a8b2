package monitoring

import (
	"sort"
	"sync"
	"time"
)

// Job results.
const (
	JobSuccess = "success"
	JobFailure = "failure"
)

// JobSummary describes the run history of one housekeeping job.
type JobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	TotalRuns           uint64        `json:"total_runs"`
}

// JobTracker records housekeeping runs so health probes can report on them.
// It is safe for concurrent use.
type JobTracker struct {
	mu   sync.Mutex
	jobs map[string]*JobSummary
	now  func() time.Time
}

// NewJobTracker constructs an empty tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{
		jobs: make(map[string]*JobSummary),
		now:  time.Now,
	}
}

// Record stores the outcome of one run. A nil err counts as success.
func (t *JobTracker) Record(job string, err error, duration time.Duration) {
	if t == nil || job == "" {
		return
	}
	if duration < 0 {
		duration = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.jobs[job]
	if !ok {
		entry = &JobSummary{Job: job}
		t.jobs[job] = entry
	}

	now := t.now()
	entry.LastRunAt = now
	entry.LastDuration = duration
	entry.TotalRuns++
	if err == nil {
		entry.LastStatus = JobSuccess
		entry.LastError = ""
		entry.LastSuccessAt = now
		entry.ConsecutiveFailures = 0
		return
	}
	entry.LastStatus = JobFailure
	entry.LastError = err.Error()
	entry.ConsecutiveFailures++
}

// Jobs returns a copy of every job summary, sorted by name.
func (t *JobTracker) Jobs() []JobSummary {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]JobSummary, 0, len(t.jobs))
	for _, entry := range t.jobs {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}
