// Package browser renders fetched pages in a headless Chrome so the
// post-execution DOM can replace the raw wire body.
package browser

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidOptions flags a render option map whose values have the
// wrong shape. The transport layer maps it to a client error.
var ErrInvalidOptions = errors.New("browser: invalid render options")

// Wait strategies a render may ask for.
const (
	WaitLoad             = "load"
	WaitDOMContentLoaded = "domcontentloaded"
	WaitNetworkIdle      = "networkidle"
)

// RenderOptions shape a single render pass. The zero value renders
// headless with the configured defaults.
type RenderOptions struct {
	// Headless controls whether the browser window is shown.
	Headless bool

	// WaitUntil selects the settle strategy after navigation.
	WaitUntil string

	// Timeout bounds the whole render. Zero uses the configured
	// default.
	Timeout time.Duration

	// Sleep is an extra pause after the page settles, for pages that
	// draw late.
	Sleep time.Duration

	// Width and Height override the viewport. Zero keeps the
	// configured size.
	Width  int
	Height int
}

// OptionsFromMap converts a normalized option map into RenderOptions.
// Keys arrive snake_cased with headless already defaulted; unknown
// keys are ignored so callers can pass engine-specific extras through.
func OptionsFromMap(raw map[string]any) (RenderOptions, error) {
	opts := RenderOptions{Headless: true}
	if raw == nil {
		return opts, nil
	}

	if v, ok := raw["headless"]; ok {
		b, ok := v.(bool)
		if !ok {
			return opts, fmt.Errorf("%w: headless must be a boolean, got %T", ErrInvalidOptions, v)
		}
		opts.Headless = b
	}

	if v, ok := raw["wait_until"]; ok {
		s, ok := v.(string)
		if !ok {
			return opts, fmt.Errorf("%w: wait_until must be a string, got %T", ErrInvalidOptions, v)
		}
		switch s {
		case WaitLoad, WaitDOMContentLoaded, WaitNetworkIdle:
			opts.WaitUntil = s
		default:
			return opts, fmt.Errorf("%w: unknown wait_until %q", ErrInvalidOptions, s)
		}
	}

	var err error
	if opts.Timeout, err = secondsField(raw, "timeout"); err != nil {
		return opts, err
	}
	if opts.Sleep, err = secondsField(raw, "sleep"); err != nil {
		return opts, err
	}
	if opts.Width, err = intField(raw, "width"); err != nil {
		return opts, err
	}
	if opts.Height, err = intField(raw, "height"); err != nil {
		return opts, err
	}
	return opts, nil
}

// secondsField reads a numeric field expressed in seconds. JSON
// numbers decode as float64; integers are accepted for direct callers.
func secondsField(raw map[string]any, key string) (time.Duration, error) {
	v, ok := raw[key]
	if !ok {
		return 0, nil
	}
	seconds, ok := asFloat(v)
	if !ok || seconds < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative number, got %v", ErrInvalidOptions, key, v)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func intField(raw map[string]any, key string) (int, error) {
	v, ok := raw[key]
	if !ok {
		return 0, nil
	}
	f, ok := asFloat(v)
	if !ok || f < 0 || f != float64(int(f)) {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer, got %v", ErrInvalidOptions, key, v)
	}
	return int(f), nil
}

func asFloat(v any) (float64, bool) {
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
