package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/fetchbridge/internal/browser"
	"github.com/xkilldash9x/fetchbridge/internal/config"
	"github.com/xkilldash9x/fetchbridge/internal/dispatch"
	"github.com/xkilldash9x/fetchbridge/internal/engine"
	"github.com/xkilldash9x/fetchbridge/internal/network"
	"github.com/xkilldash9x/fetchbridge/internal/observability"
	"github.com/xkilldash9x/fetchbridge/internal/server"
	"github.com/xkilldash9x/fetchbridge/internal/store"
	"github.com/xkilldash9x/fetchbridge/internal/worker"
)

// newServeCmd creates and configures the `serve` command.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the bridge HTTP server",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their Viper keys so the command line
			// overrides config file and environment values.
			if err := viper.BindPFlag("server.host", cmd.Flags().Lookup("host")); err != nil {
				return err
			}
			if err := viper.BindPFlag("server.port", cmd.Flags().Lookup("port")); err != nil {
				return err
			}
			return viper.BindPFlag("logger.level", cmd.Flags().Lookup("log-level"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			srv := buildServer(cfg, logger)
			return srv.Run(ctx)
		},
	}

	serveCmd.Flags().String("host", "", "interface to bind (default from config)")
	serveCmd.Flags().Int("port", 0, "port to listen on (default from config)")
	serveCmd.Flags().String("log-level", "", "log level: debug, info, warn, error")
	return serveCmd
}

// buildServer wires the full stack: transport config, stores, the
// default client, the renderer pool, and the HTTP surface.
func buildServer(cfg *config.Config, logger *zap.Logger) *server.Server {
	netCfg := clientConfig(cfg, logger)

	sessions := store.New[*engine.Session](logger, "session")
	responses := store.New[*engine.Response](logger, "response")

	client := engine.NewClient(netCfg, logger)
	renderer := browser.NewChromeRenderer(cfg.Browser, cfg.Render, logger)
	pool := worker.NewPool(cfg.Render.Concurrency, logger)

	dispatcher := dispatch.New(sessions, responses, client, renderer, pool, logger)

	opener := func(sessionCfg engine.SessionConfig) (*engine.Session, error) {
		return engine.OpenSession(sessionCfg, netCfg, logger)
	}

	return server.New(cfg.Server, dispatcher, opener, logger)
}

// clientConfig translates the file-level network section into the
// transport configuration shared by sessions and the default client.
func clientConfig(cfg *config.Config, logger *zap.Logger) *network.ClientConfig {
	netCfg := network.NewDefaultClientConfig()
	netCfg.Logger = logger.Named("network")
	netCfg.IgnoreTLSErrors = cfg.Network.IgnoreTLSErrors
	netCfg.ForceHTTP2 = cfg.Network.ForceHTTP2
	netCfg.RequestsPerSecond = cfg.Network.RequestsPerSecond
	if cfg.Network.Timeout > 0 {
		netCfg.RequestTimeout = cfg.Network.Timeout
	}
	if cfg.Network.MaxIdleConns > 0 {
		netCfg.MaxIdleConns = cfg.Network.MaxIdleConns
	}
	if cfg.Network.MaxIdleConnsPerHost > 0 {
		netCfg.MaxIdleConnsPerHost = cfg.Network.MaxIdleConnsPerHost
	}
	if cfg.Network.MaxConnsPerHost > 0 {
		netCfg.MaxConnsPerHost = cfg.Network.MaxConnsPerHost
	}
	if cfg.Network.IdleConnTimeout > 0 {
		netCfg.IdleConnTimeout = cfg.Network.IdleConnTimeout
	}
	return netCfg
}
