package engine

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/xkilldash9x/fetchbridge/internal/network"
)

// Client is the stateless Requester behind requests that name no
// session. It keeps no jar and no identity headers, so nothing from
// one call can leak into the next.
type Client struct {
	client    *http.Client
	clientCfg *network.ClientConfig
}

// NewClient builds the shared default client over the process-wide
// transport configuration.
func NewClient(netCfg *network.ClientConfig, logger *zap.Logger) *Client {
	if netCfg == nil {
		netCfg = network.NewDefaultClientConfig()
	}
	if logger != nil {
		cfg := *netCfg
		cfg.Logger = logger.Named("client")
		netCfg = &cfg
	}
	return &Client{
		client:    network.NewClient(netCfg),
		clientCfg: netCfg,
	}
}

// Request executes one exchange with no carried state.
func (c *Client) Request(ctx context.Context, method, rawURL string, opts RequestOptions) (*Response, error) {
	return execute(ctx, c.client, c.clientCfg, nil, method, rawURL, opts)
}
