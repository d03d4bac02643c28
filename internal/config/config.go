package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Database
	DatabaseURL string `env:"MCPWIZARD_DB_URL" envDefault:"postgres://localhost:5432/mcpwizard?sslmode=disable"`

	// HTTP server
	HTTPAddr    string   `env:"MCPWIZARD_HTTP_ADDR" envDefault:":8080"`
	CORSOrigins []string `env:"MCPWIZARD_CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	// Providers
	GitHubToken     string        `env:"MCPWIZARD_GITHUB_TOKEN"`
	ProviderTimeout time.Duration `env:"MCPWIZARD_PROVIDER_TIMEOUT" envDefault:"10s"`

	// Discovery
	Workers           int           `env:"MCPWIZARD_WORKERS" envDefault:"4"`
	DiscoveryCacheTTL time.Duration `env:"MCPWIZARD_DISCOVERY_CACHE_TTL" envDefault:"1h"`
	AnalysisCacheTTL  time.Duration `env:"MCPWIZARD_ANALYSIS_CACHE_TTL" envDefault:"6h"`
	JobRetention      time.Duration `env:"MCPWIZARD_JOB_RETENTION" envDefault:"1h"`

	// Background refresh. An empty query list disables the loop.
	RefreshInterval time.Duration `env:"MCPWIZARD_REFRESH_INTERVAL" envDefault:"24h"`
	RefreshQueries  []string      `env:"MCPWIZARD_REFRESH_QUERIES" envSeparator:","`
	StaleAfter      time.Duration `env:"MCPWIZARD_STALE_AFTER" envDefault:"168h"`
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first, when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("MCPWIZARD_DB_URL is required")
	}

	return cfg, nil
}
