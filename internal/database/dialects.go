package database

import (
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
	driverMySQL    = "mysql"

	sqliteMemoryDSN = "file::memory:?cache=shared&_foreign_keys=1"
)

func dialectorFor(driver string, cfg Config) (gorm.Dialector, error) {
	switch driver {
	case driverSQLite:
		dsn, err := sqliteDSN(cfg)
		if err != nil {
			return nil, err
		}
		return sqlite.Open(dsn), nil
	case driverPostgres:
		dsn, err := buildPostgresDSN(cfg)
		if err != nil {
			return nil, err
		}
		return postgres.Open(dsn), nil
	case driverMySQL:
		dsn, err := buildMySQLDSN(cfg)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// sqliteDSN opens file databases in WAL mode with a busy timeout so the
// occasional concurrent registration waits instead of failing.
func sqliteDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" || strings.EqualFold(path, ":memory:") {
		return sqliteMemoryDSN, nil
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("database: create %s: %w", dir, err)
		}
	}

	params := url.Values{}
	params.Set("_foreign_keys", "1")
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	for key, value := range cfg.Options {
		params.Set(key, value)
	}
	return "file:" + filepath.ToSlash(path) + "?" + params.Encode(), nil
}

func enableForeignKeys(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}

// buildPostgresDSN renders a postgres:// URL and checks it with the pgx
// parser so a malformed setting fails at start-up rather than on first query.
func buildPostgresDSN(cfg Config) (string, error) {
	dsn := cfg.DSN
	if dsn == "" {
		if cfg.User == "" || cfg.Name == "" {
			return "", errors.New("postgres configuration requires user and database name")
		}

		host := cfg.Host
		if host == "" {
			host = "localhost"
		}
		port := cfg.Port
		if port == 0 {
			port = 5432
		}

		query := url.Values{}
		query.Set("sslmode", "disable")
		query.Set("TimeZone", "UTC")
		for key, value := range cfg.Options {
			if strings.TrimSpace(value) != "" {
				query.Set(key, value)
			}
		}

		u := url.URL{
			Scheme:   "postgres",
			Host:     net.JoinHostPort(host, strconv.Itoa(port)),
			Path:     "/" + cfg.Name,
			RawQuery: query.Encode(),
		}
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
		dsn = u.String()
	}

	if _, err := pgconn.ParseConfig(dsn); err != nil {
		return "", fmt.Errorf("postgres dsn: %w", err)
	}
	return dsn, nil
}

// buildMySQLDSN formats the DSN with the driver's own Config so escaping and
// parameter names always match what the driver parses.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		if _, err := mysqldriver.ParseDSN(cfg.DSN); err != nil {
			return "", fmt.Errorf("mysql dsn: %w", err)
		}
		return cfg.DSN, nil
	}

	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql configuration requires user and database name")
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	my := mysqldriver.NewConfig()
	my.User = cfg.User
	my.Passwd = cfg.Password
	my.Net = "tcp"
	my.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	my.DBName = cfg.Name
	my.ParseTime = true
	my.Loc = time.UTC
	my.Collation = "utf8mb4_unicode_ci"
	if len(cfg.Options) > 0 {
		my.Params = make(map[string]string, len(cfg.Options))
		for key, value := range cfg.Options {
			my.Params[key] = value
		}
	}
	return my.FormatDSN(), nil
}
