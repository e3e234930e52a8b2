// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"fmt"
	"regexp"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/database"
)

type TestDBOption func(*testDBConfig)

type testDBConfig struct {
	migrate bool
}

// WithMigrations brings the schema to the latest version.
func WithMigrations() TestDBOption {
	return func(cfg *testDBConfig) { cfg.migrate = true }
}

var (
	dbSeq      atomic.Uint64
	unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]+`)
)

// MustOpenTestDB opens an in-memory SQLite database private to this call and
// closes it when the test ends. The name embeds the test name, which keeps
// sqlite errors readable.
func MustOpenTestDB(t testing.TB, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	var cfg testDBConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	name := fmt.Sprintf("%s_%d", unsafeName.ReplaceAllString(t.Name(), "_"), dbSeq.Add(1))
	db, err := database.Open(database.Config{
		Driver: "sqlite",
		DSN:    "file:" + name + "?mode=memory&cache=shared&_foreign_keys=1",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	if cfg.migrate {
		require.NoError(t, database.Migrate(db))
	}
	return db
}
