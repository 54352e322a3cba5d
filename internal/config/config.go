// Package config parses and validates all application configuration from
// environment variables using caarlos0/env/v11.
//
// Call [Load] once at startup; pass the resulting [Config] to subcommands.
// The process exits if any field tagged "required" is missing.
package config

import (
	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration sourced from environment
// variables.
type Config struct {
	// ── Database ─────────────────────────────────────────────────────────────────
	DatabasePath string `env:"DATABASE_PATH,required"`
	// One worker goroutine (and one SQLite connection) per slot.
	DBConnections   int `env:"DB_CONNECTIONS"     envDefault:"10"`
	DBBusyTimeoutMS int `env:"DB_BUSY_TIMEOUT_MS" envDefault:"5000"`

	// ── Logging ──────────────────────────────────────────────────────────────────
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses and returns Config from environment variables.
// Returns an error if any required field is missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
