package database

import (
	"os"
	"strconv"
	"time"
)

// EnvDefaults returns connection defaults drawn from the conventional
// client environment variables for the driver, so deployments that already
// configure psql or mysql clients work without duplicating settings.
func EnvDefaults(driver string) ConnectionSettings {
	switch driver {
	case DriverPostgres:
		return postgresEnvDefaults()
	case DriverMySQL:
		return mysqlEnvDefaults()
	default:
		return ConnectionSettings{Timeout: 30 * time.Second}
	}
}

// postgresEnvDefaults follows the libpq environment variable convention
func postgresEnvDefaults() ConnectionSettings {
	settings := ConnectionSettings{
		Host:     envOr("PGHOST", "localhost"),
		Port:     envIntOr("PGPORT", 5432),
		Username: envOr("PGUSER", "postgres"),
		Password: os.Getenv("PGPASSWORD"),
		Database: os.Getenv("PGDATABASE"),
		SSLMode:  os.Getenv("PGSSLMODE"),
		Timeout:  30 * time.Second,
	}
	return settings
}

// mysqlEnvDefaults follows the mysql client environment variable convention
func mysqlEnvDefaults() ConnectionSettings {
	settings := ConnectionSettings{
		Host:     envOr("MYSQL_HOST", "localhost"),
		Port:     envIntOr("MYSQL_TCP_PORT", 3306),
		Username: envOr("MYSQL_USER", "root"),
		Password: os.Getenv("MYSQL_PWD"),
		Database: os.Getenv("MYSQL_DATABASE"),
		Timeout:  30 * time.Second,
	}
	return settings
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
