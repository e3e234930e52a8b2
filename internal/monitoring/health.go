// Package monitoring runs the liveness and readiness probes served under
// /health and tracks the outcome of background jobs.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDegraded ProbeStatus = "degraded"
	StatusDown     ProbeStatus = "down"
)

// severity ranks statuses; unknown values rank as down.
func (s ProbeStatus) severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// ProbeResult is the outcome of one check.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport is the combined result served by the probe endpoints. Success
// is true only when every check is up.
type HealthReport struct {
	Success bool          `json:"success"`
	Status  ProbeStatus   `json:"status"`
	Checks  []ProbeResult `json:"checks"`
}

type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

// NewCheck names fn. A nil fn yields a check that always reports down.
func NewCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	if fn == nil {
		fn = func(context.Context) ProbeResult {
			return ProbeResult{Status: StatusDown, Details: "probe not implemented"}
		}
	}
	return Check{Name: name, Run: fn}
}

// HealthManager holds the registered probes. Register everything before the
// router starts serving; evaluation is safe for concurrent use afterwards.
type HealthManager struct {
	liveness  []Check
	readiness []Check
}

func NewHealthManager() *HealthManager {
	return &HealthManager{}
}

// RegisterLiveness adds a probe to /health/live. Unnamed checks are ignored.
func (m *HealthManager) RegisterLiveness(check Check) {
	if check.Name != "" {
		m.liveness = append(m.liveness, check)
	}
}

// RegisterReadiness adds a probe to /health/ready. Unnamed checks are ignored.
func (m *HealthManager) RegisterReadiness(check Check) {
	if check.Name != "" {
		m.readiness = append(m.readiness, check)
	}
}

func (m *HealthManager) EvaluateLiveness(ctx context.Context) HealthReport {
	return evaluate(ctx, m.liveness)
}

func (m *HealthManager) EvaluateReadiness(ctx context.Context) HealthReport {
	return evaluate(ctx, m.readiness)
}

// evaluate runs checks concurrently and reports them in registration order.
func evaluate(ctx context.Context, checks []Check) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]ProbeResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		i, check := i, check
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = runCheck(ctx, check)
		}()
	}
	wg.Wait()

	status := StatusUp
	for _, result := range results {
		status = WorstStatus(status, result.Status)
	}
	return HealthReport{Success: status == StatusUp, Status: status, Checks: results}
}

// runCheck turns a panic or an empty status into a down result.
func runCheck(ctx context.Context, check Check) (result ProbeResult) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = ProbeResult{Status: StatusDown, Details: fmt.Sprint(rec)}
		}
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration == 0 {
			result.Duration = time.Since(start)
		}
		result.Component = check.Name
	}()
	return check.Run(ctx)
}

// WorstStatus returns the more severe of a and b. Unknown statuses count as down.
func WorstStatus(a, b ProbeStatus) ProbeStatus {
	worst := a
	if b.severity() > a.severity() {
		worst = b
	}
	if worst.severity() == StatusDown.severity() {
		return StatusDown
	}
	return worst
}

// ResultFromError maps err to a result. Timeouts and cancellation are reported
// as degraded since the dependency may only be slow.
func ResultFromError(component string, err error, duration time.Duration) ProbeResult {
	result := ProbeResult{Component: component, Status: StatusUp, Duration: max(duration, 0)}
	if err == nil {
		return result
	}
	result.Details = err.Error()
	result.Status = StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		result.Status = StatusDegraded
	}
	return result
}
