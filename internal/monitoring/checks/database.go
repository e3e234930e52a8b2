package checks

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/database"
	"github.com/charlesng35/csahub/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

// Database pings db and compares the applied schema version with the one
// this build expects. A pending migration degrades readiness; an unreachable
// database takes it down.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	if timeout <= 0 {
		timeout = defaultDatabaseTimeout
	}

	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		want := database.LatestVersion()
		have, err := database.CurrentVersion(db.WithContext(ctx))
		if err != nil || have < want {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  fmt.Sprintf("schema at version %d, want %d", have, want),
				Duration: time.Since(start),
			}
		}

		stats := sqlDB.Stats()
		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Details:  fmt.Sprintf("schema=%d open=%d in_use=%d", have, stats.OpenConnections, stats.InUse),
			Duration: time.Since(start),
		}
	})
}
