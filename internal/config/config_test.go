package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, time.Hour, cfg.DiscoveryCacheTTL)
	assert.Equal(t, 6*time.Hour, cfg.AnalysisCacheTTL)
	assert.Equal(t, time.Hour, cfg.JobRetention)
	assert.Empty(t, cfg.RefreshQueries)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MCPWIZARD_HTTP_ADDR", ":9999")
	t.Setenv("MCPWIZARD_WORKERS", "8")
	t.Setenv("MCPWIZARD_REFRESH_QUERIES", "file system,database")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, []string{"file system", "database"}, cfg.RefreshQueries)
}
