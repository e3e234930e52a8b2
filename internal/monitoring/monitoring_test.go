package monitoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testutil "github.com/charlesng35/csahub/internal/database/testutil"
	"github.com/charlesng35/csahub/internal/monitoring"
	"github.com/charlesng35/csahub/internal/monitoring/checks"
)

func TestHealthManagerEvaluate(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(monitoring.NewCheck("smtp", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "connection refused"}
	}))
	manager.RegisterReadiness(monitoring.Check{})

	report := manager.EvaluateReadiness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Len(t, report.Checks, 2)
	require.Equal(t, "smtp", report.Checks[1].Component)

	live := manager.EvaluateLiveness(context.Background())
	require.True(t, live.Success)
	require.Empty(t, live.Checks)
}

func TestHealthManagerRecoversPanickingProbe(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterLiveness(monitoring.NewCheck("boom", func(context.Context) monitoring.ProbeResult {
		panic("probe exploded")
	}))
	manager.RegisterLiveness(monitoring.NewCheck("blank", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{}
	}))

	report := manager.EvaluateLiveness(context.Background())
	require.False(t, report.Success)
	require.Len(t, report.Checks, 2)
	require.Equal(t, "boom", report.Checks[0].Component)
	require.Equal(t, "probe exploded", report.Checks[0].Details)
	require.Equal(t, monitoring.StatusDown, report.Checks[1].Status)
}

func TestWorstStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, monitoring.StatusUp, monitoring.WorstStatus(monitoring.StatusUp, monitoring.StatusUp))
	require.Equal(t, monitoring.StatusDegraded, monitoring.WorstStatus(monitoring.StatusUp, monitoring.StatusDegraded))
	require.Equal(t, monitoring.StatusDown, monitoring.WorstStatus(monitoring.StatusDown, monitoring.StatusDegraded))
	require.Equal(t, monitoring.StatusDown, monitoring.WorstStatus(monitoring.StatusUp, ""))
}

func TestResultFromError(t *testing.T) {
	t.Parallel()

	require.Equal(t, monitoring.StatusUp, monitoring.ResultFromError("db", nil, time.Second).Status)
	require.Equal(t, monitoring.StatusDegraded, monitoring.ResultFromError("db", context.DeadlineExceeded, 0).Status)

	down := monitoring.ResultFromError("db", errors.New("refused"), -time.Second)
	require.Equal(t, monitoring.StatusDown, down.Status)
	require.Equal(t, "refused", down.Details)
	require.Zero(t, down.Duration)
}

func TestDatabaseCheck(t *testing.T) {
	t.Parallel()

	db := testutil.MustOpenTestDB(t, testutil.WithMigrations())
	result := checks.Database(db, time.Second).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Contains(t, result.Details, "open=")

	empty := testutil.MustOpenTestDB(t)
	result = checks.Database(empty, time.Second).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Contains(t, result.Details, "schema at version 0")

	result = checks.Database(nil, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
}

func TestMaintenanceCheck(t *testing.T) {
	t.Parallel()

	tracker := monitoring.NewJobTracker()
	check := checks.Maintenance(tracker, time.Hour)

	require.Equal(t, monitoring.StatusUp, check.Run(context.Background()).Status)

	tracker.Record("cleanup", nil, time.Second)
	require.Equal(t, monitoring.StatusUp, check.Run(context.Background()).Status)

	tracker.Record("cleanup", errors.New("database is locked"), time.Second)
	result := check.Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Contains(t, result.Details, "database is locked")

	tracker.Record("cleanup", errors.New("database is locked"), time.Second)
	require.Equal(t, monitoring.StatusDown, check.Run(context.Background()).Status)

	tracker.Record("cleanup", nil, time.Second)
	jobs := tracker.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, uint64(4), jobs[0].TotalRuns)
	require.Zero(t, jobs[0].ConsecutiveFailures)
	require.Empty(t, jobs[0].LastError)
}
