package app

import (
	"strings"

	"github.com/charlesng35/csahub/internal/database"
)

// ConnectionConfig converts DatabaseConfig to the database package representation.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   strings.TrimSpace(c.Path),
		DSN:    strings.TrimSpace(c.DSN),

		MaxOpenConns:    c.MaxOpenConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(c.Postgres.Host)
		dbCfg.Port = c.Postgres.Port
		dbCfg.Name = strings.TrimSpace(c.Postgres.Database)
		dbCfg.User = strings.TrimSpace(c.Postgres.Username)
		dbCfg.Password = c.Postgres.Password
		if mode := strings.TrimSpace(c.Postgres.SSLMode); mode != "" {
			dbCfg.Options = map[string]string{"sslmode": mode}
		}
	case "mysql":
		dbCfg.Host = strings.TrimSpace(c.MySQL.Host)
		dbCfg.Port = c.MySQL.Port
		dbCfg.Name = strings.TrimSpace(c.MySQL.Database)
		dbCfg.User = strings.TrimSpace(c.MySQL.Username)
		dbCfg.Password = c.MySQL.Password
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}
