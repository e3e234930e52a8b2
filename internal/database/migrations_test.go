package database_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/csahub/internal/database"
	"github.com/charlesng35/csahub/internal/database/testutil"
	"github.com/charlesng35/csahub/internal/models"
)

func TestMigrateCreatesSchemaAndRecordsVersions(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	require.NoError(t, database.Migrate(db))

	for _, model := range []any{&models.Member{}, &models.Event{}, &models.Admin{}, &models.RateLimitRecord{}, &models.CacheEntry{}, &models.AuditLog{}} {
		require.True(t, db.Migrator().HasTable(model), "%T table missing", model)
	}

	version, err := database.CurrentVersion(db)
	require.NoError(t, err)
	require.Equal(t, database.LatestVersion(), version)

	var count int64
	require.NoError(t, db.Model(&models.SchemaMigration{}).Count(&count).Error)
	require.EqualValues(t, len(database.Migrations()), count)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithMigrations())

	require.NoError(t, database.Migrate(db))

	var count int64
	require.NoError(t, db.Model(&models.SchemaMigration{}).Count(&count).Error)
	require.EqualValues(t, len(database.Migrations()), count)
}

func TestMigrationsAreOrderedAndUnique(t *testing.T) {
	seen := map[int]bool{}
	prev := 0
	for _, m := range database.Migrations() {
		require.False(t, seen[m.Version], "duplicate version %d", m.Version)
		require.Greater(t, m.Version, prev)
		require.NotEmpty(t, m.Name)
		require.NotNil(t, m.Up)
		seen[m.Version] = true
		prev = m.Version
	}
}

func TestMemberEmailIsUnique(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithMigrations())

	first := models.Member{FirstName: "Ana", LastName: "Lee", Email: "ana@example.com", Status: models.MemberStatusPending, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(&first).Error)

	dup := models.Member{FirstName: "Ana", LastName: "Lee", Email: "ana@example.com", Status: models.MemberStatusPending}
	require.Error(t, db.Create(&dup).Error)
}

func TestRateLimitKeyIsUnique(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithMigrations())
	now := time.Now().UTC()

	require.NoError(t, db.Create(&models.RateLimitRecord{IPAddress: "10.0.0.1", Email: "a@example.com", Endpoint: "join", Attempts: 1, LastAttempt: now}).Error)
	require.Error(t, db.Create(&models.RateLimitRecord{IPAddress: "10.0.0.1", Email: "a@example.com", Endpoint: "join", Attempts: 1, LastAttempt: now}).Error)
	require.NoError(t, db.Create(&models.RateLimitRecord{IPAddress: "10.0.0.1", Email: "a@example.com", Endpoint: "admin_login", Attempts: 1, LastAttempt: now}).Error)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := database.Open(database.Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestCloseNilIsNoop(t *testing.T) {
	require.NoError(t, database.Close(nil))
}
