package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/models"
)

func openPrivateSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(Config{DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func TestMigrateStopsAtFailingStep(t *testing.T) {
	db := openPrivateSQLite(t)

	boom := errors.New("boom")
	steps := []Migration{
		{Version: 1, Name: "ok", Up: func(tx *gorm.DB) error { return tx.Migrator().CreateTable(&models.Admin{}) }},
		{Version: 2, Name: "broken", Up: func(*gorm.DB) error { return boom }},
		{Version: 3, Name: "never", Up: func(tx *gorm.DB) error { return tx.Migrator().CreateTable(&models.Event{}) }},
	}

	err := migrate(db, steps)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "002_broken")

	version, err := CurrentVersion(db)
	require.NoError(t, err)
	require.Equal(t, 1, version)
	require.False(t, db.Migrator().HasTable(&models.Event{}))
}
