package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesReferenceDefaults(t *testing.T) {
	viper.Reset()
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, 60*time.Second, cfg.Queue.RetryBaseDelay)
	assert.Equal(t, 2.0, cfg.Queue.RetryBackoffMultiplier)
	assert.Equal(t, time.Hour, cfg.Queue.MaxRetryDelay)
	assert.Equal(t, 100, cfg.Queue.BatchSize)
	assert.Equal(t, 4, cfg.TTS.ThreadPoolMaxWorkers)
	assert.False(t, cfg.Auth.Enabled)
}

func TestLoad_HonorsEnvOverride(t *testing.T) {
	viper.Reset()
	t.Setenv("QUEUE_MAX_ATTEMPTS", "7")
	t.Setenv("AUTH_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Queue.MaxAttempts)
	assert.True(t, cfg.Auth.Enabled)
}
