package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "127.0.0.1:39231", cfg.Server.Addr())
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 30*time.Second, cfg.Network.Timeout)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 2, cfg.Render.Concurrency)
	require.NoError(t, cfg.Validate())
}

func TestNewConfigFromViper(t *testing.T) {
	t.Run("overrides defaults", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("server.port", 8080)
		v.Set("network.ignore_tls_errors", true)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.True(t, cfg.Network.IgnoreTLSErrors)
	})

	t.Run("rejects invalid port", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("server.port", -1)

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.port")
	})

	t.Run("rejects zero render concurrency", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("render.concurrency", 0)

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "render.concurrency")
	})
}
