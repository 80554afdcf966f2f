package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 3*time.Minute, cfg.WriteTimeout)
	assert.Empty(t, cfg.APIKeys)
	assert.False(t, cfg.AllowQueryAPIKey)
	assert.False(t, cfg.JWT.Enabled())
}

func TestDefaultCouncilConfig(t *testing.T) {
	cfg := DefaultCouncilConfig()
	assert.Equal(t, "binary", cfg.Mode)
	assert.Equal(t, 0.7, cfg.RiskThreshold)
	assert.Empty(t, cfg.Reviewers)
	assert.Len(t, cfg.Profiles(), 7)
}

func TestDefaultLLMConfig(t *testing.T) {
	cfg := DefaultLLMConfig()
	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 5, cfg.BreakerThreshold)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "councilgate", cfg.ServiceName)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 30*time.Second, cfg.ExportInterval)
}
