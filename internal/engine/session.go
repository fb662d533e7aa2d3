package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/fetchbridge/internal/network"
)

// Browser identities a session can impersonate. The version slot in
// each template is filled from SessionConfig.Version.
var userAgents = map[string]struct {
	template       string
	defaultVersion int
}{
	"chrome": {
		template:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
		defaultVersion: 131,
	},
	"firefox": {
		template:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:%d.0) Gecko/20100101 Firefox/%d.0",
		defaultVersion: 133,
	},
	"safari": {
		template:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/%d.0 Safari/605.1.15",
		defaultVersion: 18,
	},
}

// SessionConfig shapes a long-lived session: which browser identity
// it presents, its default headers and cookies, and transport-level
// overrides.
type SessionConfig struct {
	// Browser selects the impersonated identity: chrome, firefox or
	// safari. Empty means chrome.
	Browser string

	// Version pins the identity's major version. Zero picks a
	// current default.
	Version int

	// Proxy routes all session traffic through the given URL.
	Proxy string

	// Headers are sent on every request unless overridden per call.
	Headers map[string]string

	// Cookies seed the session jar. They apply to the first request
	// host and persist per normal cookie rules afterwards.
	Cookies map[string]string

	// Timeout is the default per-request timeout.
	Timeout time.Duration

	// Verify toggles TLS certificate verification. Nil means verify.
	Verify *bool

	// Extra holds unvalidated pass-through options beyond the keys
	// above. Carried as-is; unrecognized keys have no effect here.
	Extra map[string]any
}

// Session is a stateful Requester: cookies set by one response are
// replayed on subsequent requests, and the configured identity and
// headers ride on every call.
type Session struct {
	client    *http.Client
	clientCfg *network.ClientConfig
	jar       http.CookieJar
	defaults  map[string]string
	logger    *zap.Logger

	seedMu   sync.Mutex
	seed     map[string]string
	seedOnce bool
}

// OpenSession builds a session from the given config. netCfg supplies
// the process-wide transport defaults; per-session overrides are
// layered on a copy.
func OpenSession(cfg SessionConfig, netCfg *network.ClientConfig, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if netCfg == nil {
		netCfg = network.NewDefaultClientConfig()
	}

	identity := strings.ToLower(cfg.Browser)
	if identity == "" {
		identity = "chrome"
	}
	agent, ok := userAgents[identity]
	if !ok {
		return nil, fmt.Errorf("%w: unknown browser identity %q", ErrInvalidOption, cfg.Browser)
	}
	version := cfg.Version
	if version <= 0 {
		version = agent.defaultVersion
	}
	ua := formatUserAgent(agent.template, version)

	clientCfg := *netCfg
	if cfg.Verify != nil {
		clientCfg.IgnoreTLSErrors = !*cfg.Verify
	}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil || proxyURL.Scheme == "" || proxyURL.Host == "" {
			return nil, fmt.Errorf("%w: proxy url %q", ErrInvalidOption, cfg.Proxy)
		}
		clientCfg.ProxyURL = proxyURL
	}
	if cfg.Timeout > 0 {
		clientCfg.RequestTimeout = cfg.Timeout
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	client := network.NewClient(&clientCfg)
	client.Jar = jar

	defaults := map[string]string{"User-Agent": ua}
	for k, v := range cfg.Headers {
		defaults[k] = v
	}

	return &Session{
		client:    client,
		clientCfg: &clientCfg,
		jar:       jar,
		defaults:  defaults,
		seed:      cfg.Cookies,
		logger:    logger.Named("session"),
	}, nil
}

// Request executes one exchange through the session jar and defaults.
func (s *Session) Request(ctx context.Context, method, rawURL string, opts RequestOptions) (*Response, error) {
	s.seedJar(rawURL)
	return execute(ctx, s.client, s.clientCfg, s.defaults, method, rawURL, opts)
}

// seedJar installs the configured cookies against the first request's
// host. Later requests rely on the jar alone.
func (s *Session) seedJar(rawURL string) {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()
	if s.seedOnce || len(s.seed) == 0 {
		return
	}
	s.seedOnce = true
	u, err := url.Parse(rawURL)
	if err != nil {
		s.logger.Debug("skipping cookie seed, unparsable url", zap.String("url", rawURL))
		return
	}
	cookies := make([]*http.Cookie, 0, len(s.seed))
	for name, value := range s.seed {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	s.jar.SetCookies(u, cookies)
}

// Close releases pooled connections held by the session transport.
func (s *Session) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func formatUserAgent(template string, version int) string {
	n := strings.Count(template, "%d")
	args := make([]any, n)
	for i := range args {
		args[i] = version
	}
	return fmt.Sprintf(template, args...)
}
