package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/fetchbridge/internal/config"
	"github.com/xkilldash9x/fetchbridge/internal/observability"
)

func TestNewRootCommand(t *testing.T) {
	t.Cleanup(func() {
		viper.Reset()
		observability.ResetForTest()
	})

	t.Run("has the serve subcommand", func(t *testing.T) {
		root := NewRootCommand()
		serve, _, err := root.Find([]string{"serve"})
		require.NoError(t, err)
		assert.Equal(t, "serve", serve.Use)
		assert.NotNil(t, serve.Flags().Lookup("host"))
		assert.NotNil(t, serve.Flags().Lookup("port"))
		assert.NotNil(t, serve.Flags().Lookup("log-level"))
	})

	t.Run("prints the bare version", func(t *testing.T) {
		root := NewRootCommand()
		out := &bytes.Buffer{}
		root.SetOut(out)
		root.SetErr(out)
		root.SetArgs([]string{"--version"})

		require.NoError(t, root.ExecuteContext(context.Background()))
		assert.Equal(t, Version+"\n", out.String())
	})
}

func TestBuildServer(t *testing.T) {
	cfg := config.NewDefaultConfig()
	srv := buildServer(cfg, zap.NewNop())
	assert.NotNil(t, srv)
}

func TestClientConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Network.IgnoreTLSErrors = true
	cfg.Network.RequestsPerSecond = 5
	cfg.Network.MaxConnsPerHost = 7

	netCfg := clientConfig(cfg, zap.NewNop())
	assert.True(t, netCfg.IgnoreTLSErrors)
	assert.Equal(t, 5.0, netCfg.RequestsPerSecond)
	assert.Equal(t, 7, netCfg.MaxConnsPerHost)
}
