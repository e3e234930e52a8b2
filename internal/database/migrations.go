package database

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/models"
)

// Migration is one forward-only schema step. Versions are applied in order
// and recorded in schema_migrations.
type Migration struct {
	Version int
	Name    string
	Up      func(tx *gorm.DB) error
}

var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_members_events_admins",
		Up: func(tx *gorm.DB) error {
			return tx.Migrator().CreateTable(&models.Member{}, &models.Event{}, &models.Admin{})
		},
	},
	{
		Version: 2,
		Name:    "create_rate_limits",
		Up: func(tx *gorm.DB) error {
			return tx.Migrator().CreateTable(&models.RateLimitRecord{})
		},
	},
	{
		Version: 3,
		Name:    "create_cache_entries",
		Up: func(tx *gorm.DB) error {
			return tx.Migrator().CreateTable(&models.CacheEntry{})
		},
	},
	{
		Version: 4,
		Name:    "create_audit_logs",
		Up: func(tx *gorm.DB) error {
			return tx.Migrator().CreateTable(&models.AuditLog{})
		},
	},
	{
		Version: 5,
		Name:    "widen_member_text_columns",
		Up: func(tx *gorm.DB) error {
			// SQLite does not enforce VARCHAR lengths.
			if tx.Dialector.Name() == driverSQLite {
				return nil
			}
			for _, field := range []string{"FirstName", "LastName", "YearLevel", "Major", "Campus", "Phone"} {
				if err := tx.Migrator().AlterColumn(&models.Member{}, field); err != nil {
					return fmt.Errorf("alter members.%s: %w", field, err)
				}
			}
			return nil
		},
	},
}

// Migrations returns the registered migrations ordered by version.
func Migrations() []Migration {
	out := append([]Migration(nil), migrations...)
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// LatestVersion is the schema version this build expects.
func LatestVersion() int {
	all := Migrations()
	if len(all) == 0 {
		return 0
	}
	return all[len(all)-1].Version
}

// Migrate applies every pending migration, each in its own transaction.
func Migrate(db *gorm.DB) error {
	return migrate(db, Migrations())
}

func migrate(db *gorm.DB, steps []Migration) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	if err := db.AutoMigrate(&models.SchemaMigration{}); err != nil {
		return fmt.Errorf("migrate: bookkeeping table: %w", err)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}

	for _, step := range steps {
		if _, done := applied[step.Version]; done {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := step.Up(tx); err != nil {
				return err
			}
			return tx.Create(&models.SchemaMigration{
				Version:   step.Version,
				Name:      step.Name,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("migrate: %03d_%s: %w", step.Version, step.Name, err)
		}
	}
	return nil
}

// CurrentVersion returns the highest applied migration version, or 0.
func CurrentVersion(db *gorm.DB) (int, error) {
	var version int
	err := db.Model(&models.SchemaMigration{}).Select("COALESCE(MAX(version), 0)").Scan(&version).Error
	if err != nil {
		return 0, fmt.Errorf("migrate: current version: %w", err)
	}
	return version, nil
}

func appliedVersions(db *gorm.DB) (map[int]struct{}, error) {
	var rows []models.SchemaMigration
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("migrate: list applied: %w", err)
	}
	out := make(map[int]struct{}, len(rows))
	for _, row := range rows {
		out[row.Version] = struct{}{}
	}
	return out, nil
}
