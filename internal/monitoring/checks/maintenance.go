package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/csahub/internal/monitoring"
)

const defaultMaintenanceMaxAge = 26 * time.Hour

// Maintenance reports down when a housekeeping job keeps failing and degraded
// when its last successful run is older than maxAge. Jobs that never ran are
// ignored, so servers without a schedule stay healthy.
func Maintenance(tracker *monitoring.JobTracker, maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		jobs := tracker.Jobs()
		if len(jobs) == 0 {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "no maintenance runs recorded",
				Duration: time.Since(start),
			}
		}

		status := monitoring.StatusUp
		var problems []string
		for _, job := range jobs {
			if job.ConsecutiveFailures > 1 {
				status = monitoring.WorstStatus(status, monitoring.StatusDown)
				problems = append(problems, job.Job+": "+job.LastError)
				continue
			}
			if job.LastStatus == monitoring.JobFailure {
				status = monitoring.WorstStatus(status, monitoring.StatusDegraded)
				problems = append(problems, job.Job+": "+job.LastError)
				continue
			}
			if start.Sub(job.LastSuccessAt) > maxAge {
				status = monitoring.WorstStatus(status, monitoring.StatusDegraded)
				problems = append(problems, job.Job+": stale run "+job.LastSuccessAt.UTC().Format(time.RFC3339))
			}
		}

		return monitoring.ProbeResult{
			Status:   status,
			Details:  strings.Join(problems, "; "),
			Duration: time.Since(start),
		}
	})
}
