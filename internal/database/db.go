package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultMaxOpenConns    = 20
	defaultConnMaxLifetime = 30 * time.Minute
)

// Config contains database connection options.
type Config struct {
	Driver   string
	Path     string // SQLite database path when Driver == sqlite
	DSN      string // Optional DSN override
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Options  map[string]string

	// Pool limits apply to the networked drivers. SQLite keeps the driver
	// defaults so shared in-memory databases survive idle periods.
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to the configured backend. The registration and admin
// workload is small, so one pool serves the whole process.
func Open(cfg Config) (*gorm.DB, error) {
	driver := normalizeDriver(cfg.Driver)

	dialector, err := dialectorFor(driver, cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", driver, err)
	}

	switch driver {
	case driverSQLite:
		if err := enableForeignKeys(db); err != nil {
			_ = Close(db)
			return nil, fmt.Errorf("database: enable foreign keys: %w", err)
		}
	default:
		if err := configurePool(db, cfg); err != nil {
			_ = Close(db)
			return nil, err
		}
	}

	return db, nil
}

func normalizeDriver(driver string) string {
	switch d := strings.ToLower(strings.TrimSpace(driver)); d {
	case "", driverSQLite:
		return driverSQLite
	case driverPostgres, "postgresql":
		return driverPostgres
	default:
		return d
	}
}

// gormConfig is shared by every driver. Timestamps are generated in UTC so
// window comparisons behave the same on every backend.
func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func configurePool(db *gorm.DB, cfg Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database: pool: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = defaultConnMaxLifetime
	}

	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen / 2)
	sqlDB.SetConnMaxLifetime(lifetime)
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
