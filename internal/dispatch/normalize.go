package dispatch

import (
	"fmt"
	"strings"
	"unicode"
)

// NormalizeRenderOptions interprets the render field of an incoming
// request. A boolean true enables rendering with defaults, false or
// absence disables it, and a map enables it with options whose keys
// are rewritten from camelCase to snake_case. Headless defaults to on
// unless the caller says otherwise. Any other shape is an error.
func NormalizeRenderOptions(raw any) (map[string]any, bool, error) {
	switch v := raw.(type) {
	case nil:
		return nil, false, nil
	case bool:
		if !v {
			return nil, false, nil
		}
		return map[string]any{"headless": true}, true, nil
	case map[string]any:
		opts := make(map[string]any, len(v)+1)
		for key, value := range v {
			opts[toSnakeCase(key)] = value
		}
		if _, ok := opts["headless"]; !ok {
			opts["headless"] = true
		}
		return opts, true, nil
	default:
		return nil, false, fmt.Errorf("%w: render must be a boolean or an object, got %T", ErrInvalidRequest, raw)
	}
}

// toSnakeCase rewrites camelCase identifiers. Keys already in
// snake_case pass through unchanged, and runs of capitals stay
// together: waitUntil becomes wait_until, mockHTTPHuman becomes
// mock_http_human.
func toSnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || (unicode.IsUpper(runes[i-1]) && nextLower)) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
