package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xkilldash9x/fetchbridge/internal/browser"
	"github.com/xkilldash9x/fetchbridge/internal/engine"
)

// Sentinel errors for request validation. The transport layer maps
// these to client error statuses.
var (
	ErrInvalidRequest    = errors.New("dispatch: invalid request")
	ErrUnsupportedMethod = errors.New("dispatch: unsupported http method")
)

// supportedMethods is the closed set of verbs the dispatcher will
// execute. Anything else is rejected up front rather than handed to
// the transport.
var supportedMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodOptions: {},
}

// Request is a fully parsed dispatch order: which requester to use,
// what to fetch, how, and whether to render the result.
type Request struct {
	SessionID string
	Method    string
	URL       string
	Options   engine.RequestOptions

	// Render holds the validated render options when rendering was
	// requested. Validation happens at parse time so a bad render
	// value never reaches the network.
	Render        browser.RenderOptions
	RenderEnabled bool
}

// ParseRequest validates and types an incoming request payload. The
// payload arrives as an open JSON object; the envelope fields are
// popped off, recognized request options are typed, and the remainder
// passes through untouched.
func ParseRequest(payload map[string]any) (Request, error) {
	var req Request

	rawURL, ok := payload["url"].(string)
	if !ok || rawURL == "" {
		return req, fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	req.URL = rawURL

	method := http.MethodGet
	if v, ok := payload["method"]; ok {
		s, ok := v.(string)
		if !ok {
			return req, fmt.Errorf("%w: method must be a string", ErrInvalidRequest)
		}
		method = strings.ToUpper(s)
	}
	if _, ok := supportedMethods[method]; !ok {
		return req, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	req.Method = method

	if v, ok := payload["sessionId"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return req, fmt.Errorf("%w: sessionId must be a string", ErrInvalidRequest)
		}
		req.SessionID = s
	}

	render, enabled, err := NormalizeRenderOptions(payload["render"])
	if err != nil {
		return req, err
	}
	if enabled {
		opts, err := browser.OptionsFromMap(render)
		if err != nil {
			return req, err
		}
		req.Render = opts
	}
	req.RenderEnabled = enabled

	opts, err := parseOptions(payload)
	if err != nil {
		return req, err
	}
	req.Options = opts
	return req, nil
}

// envelope keys are consumed above; recognized options are typed and
// anything else lands in the pass-through map.
func parseOptions(payload map[string]any) (engine.RequestOptions, error) {
	var opts engine.RequestOptions
	for key, value := range payload {
		switch key {
		case "url", "method", "sessionId", "render":
			// envelope, already consumed
		case "params":
			m, err := stringMap(key, value)
			if err != nil {
				return opts, err
			}
			opts.Params = m
		case "headers":
			m, err := stringMap(key, value)
			if err != nil {
				return opts, err
			}
			opts.Headers = m
		case "cookies":
			m, err := stringMap(key, value)
			if err != nil {
				return opts, err
			}
			opts.Cookies = m
		case "data":
			opts.Data = value
		case "json":
			opts.JSON = value
		case "timeout":
			d, err := secondsValue(key, value)
			if err != nil {
				return opts, err
			}
			opts.Timeout = *d
		case "allowRedirects", "allow_redirects":
			b, err := boolValue(key, value)
			if err != nil {
				return opts, err
			}
			opts.AllowRedirects = b
		case "history":
			b, err := boolValue(key, value)
			if err != nil {
				return opts, err
			}
			opts.History = b
		case "proxy":
			s, ok := value.(string)
			if !ok {
				return opts, fmt.Errorf("%w: proxy must be a string", ErrInvalidRequest)
			}
			opts.Proxy = s
		default:
			// Unvalidated pass-through: forwarded as-is.
			if opts.Extra == nil {
				opts.Extra = make(map[string]any)
			}
			opts.Extra[key] = value
		}
	}
	return opts, nil
}

// ParseSessionConfig types a session creation payload.
func ParseSessionConfig(payload map[string]any) (engine.SessionConfig, error) {
	var cfg engine.SessionConfig
	for key, value := range payload {
		switch key {
		case "browser":
			s, ok := value.(string)
			if !ok {
				return cfg, fmt.Errorf("%w: browser must be a string", ErrInvalidRequest)
			}
			cfg.Browser = s
		case "version":
			f, ok := asNumber(value)
			if !ok || f != float64(int(f)) {
				return cfg, fmt.Errorf("%w: version must be an integer", ErrInvalidRequest)
			}
			cfg.Version = int(f)
		case "proxy":
			s, ok := value.(string)
			if !ok {
				return cfg, fmt.Errorf("%w: proxy must be a string", ErrInvalidRequest)
			}
			cfg.Proxy = s
		case "headers":
			m, err := stringMap(key, value)
			if err != nil {
				return cfg, err
			}
			cfg.Headers = m
		case "cookies":
			m, err := stringMap(key, value)
			if err != nil {
				return cfg, err
			}
			cfg.Cookies = m
		case "timeout":
			d, err := secondsValue(key, value)
			if err != nil {
				return cfg, err
			}
			if d != nil {
				cfg.Timeout = *d
			}
		case "verify":
			b, err := boolValue(key, value)
			if err != nil {
				return cfg, err
			}
			cfg.Verify = b
		default:
			// Unvalidated pass-through: forwarded as-is.
			if cfg.Extra == nil {
				cfg.Extra = make(map[string]any)
			}
			cfg.Extra[key] = value
		}
	}
	return cfg, nil
}

func stringMap(key string, value any) (map[string]string, error) {
	raw, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object of strings", ErrInvalidRequest, key)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch s := v.(type) {
		case string:
			out[k] = s
		case float64, int, bool:
			out[k] = fmt.Sprintf("%v", s)
		default:
			return nil, fmt.Errorf("%w: %s[%q] must be a scalar", ErrInvalidRequest, key, k)
		}
	}
	return out, nil
}

func secondsValue(key string, value any) (*time.Duration, error) {
	f, ok := asNumber(value)
	if !ok || f < 0 {
		return nil, fmt.Errorf("%w: %s must be a non-negative number of seconds", ErrInvalidRequest, key)
	}
	d := time.Duration(f * float64(time.Second))
	return &d, nil
}

func boolValue(key string, value any) (*bool, error) {
	b, ok := value.(bool)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a boolean", ErrInvalidRequest, key)
	}
	return &b, nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
