package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/fetchbridge/internal/network"
)

const maxRedirects = 10

// execute is the shared request path behind Session and Client. It
// copies the base client so per-request redirect policy, timeout, and
// proxy overrides never leak into other callers.
func execute(ctx context.Context, base *http.Client, baseCfg *network.ClientConfig, defaults map[string]string, method, rawURL string, opts RequestOptions) (*Response, error) {
	target, err := buildURL(rawURL, opts.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}

	body, contentType, err := buildBody(opts)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	for k, v := range defaults {
		req.Header.Set(k, v)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	for name, value := range opts.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	client := *base
	if opts.Timeout > 0 {
		client.Timeout = opts.Timeout
	}
	if opts.Proxy != "" {
		transport, err := proxyTransport(baseCfg, opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("%w: proxy %q: %v", ErrInvalidOption, opts.Proxy, err)
		}
		client.Transport = transport
	}

	var hops []Hop
	if opts.followRedirects() {
		client.CheckRedirect = func(next *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if prev := next.Response; prev != nil && opts.recordHistory() {
				hops = append(hops, Hop{Status: prev.StatusCode, URL: prev.Request.URL.String()})
			}
			return nil
		}
	} else {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("executing %s %s: %w", method, target, err)
	}

	return newResponse(resp, elapsed, hops), nil
}

func buildURL(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// buildBody turns the Data/JSON options into a request body and, where
// one is implied, a content type. JSON takes precedence over Data.
func buildBody(opts RequestOptions) (io.Reader, string, error) {
	if opts.JSON != nil {
		encoded, err := json.Marshal(opts.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("%w: encoding json body: %v", ErrInvalidOption, err)
		}
		return bytes.NewReader(encoded), "application/json", nil
	}

	switch data := opts.Data.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(data), "", nil
	case []byte:
		return bytes.NewReader(data), "", nil
	case map[string]string:
		form := url.Values{}
		for k, v := range data {
			form.Set(k, v)
		}
		return strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil
	case map[string]any:
		form := url.Values{}
		for k, v := range data {
			form.Set(k, fmt.Sprintf("%v", v))
		}
		return strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil
	default:
		return nil, "", fmt.Errorf("%w: unsupported data type %T", ErrInvalidOption, opts.Data)
	}
}

// proxyTransport builds a one-off transport routed through the given
// proxy. The connection pool is not shared with the base transport,
// which is acceptable for the occasional per-request override.
func proxyTransport(baseCfg *network.ClientConfig, proxy string) (http.RoundTripper, error) {
	u, err := url.Parse(proxy)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("proxy url %q has no scheme or host", proxy)
	}
	cfg := *baseCfg
	cfg.ProxyURL = u
	return network.NewTransport(&cfg), nil
}
