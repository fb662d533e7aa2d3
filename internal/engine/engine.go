// Package engine implements the outbound HTTP capability layer. A
// Requester executes a single request and hands back a Response that
// owns its body until released. Two implementations exist: Session,
// which carries a cookie jar and per-session defaults across calls,
// and Client, which is stateless and shared.
package engine

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors surfaced to the transport layer for status mapping.
var (
	// ErrNotJSON indicates a body that could not be decoded as JSON.
	ErrNotJSON = errors.New("engine: body is not valid JSON")

	// ErrInvalidOption indicates a request option whose value has an
	// unsupported shape or type.
	ErrInvalidOption = errors.New("engine: invalid request option")
)

// RequestOptions carries the per-request knobs accepted alongside the
// verb and URL. Zero values mean "unset"; pointer fields distinguish
// an explicit false from absence.
type RequestOptions struct {
	// Params are merged into the URL query string.
	Params map[string]string

	// Headers are applied after any session defaults.
	Headers map[string]string

	// Cookies are attached to this request only.
	Cookies map[string]string

	// Data is a raw body: a string, []byte, or a map that is
	// form-encoded. Mutually exclusive with JSON in practice; when
	// both are set JSON wins.
	Data any

	// JSON is marshalled as the request body with an
	// application/json content type.
	JSON any

	// Timeout overrides the client timeout for this request.
	Timeout time.Duration

	// AllowRedirects controls redirect following. Nil means follow.
	AllowRedirects *bool

	// History controls whether redirect hops are recorded on the
	// response. Nil means record.
	History *bool

	// Proxy overrides the outbound proxy for this request.
	Proxy string

	// Extra holds unvalidated pass-through options: anything the
	// caller sent beyond the keys above. Carried as-is so callers
	// written against a richer transport keep working; unrecognized
	// keys have no effect here.
	Extra map[string]any
}

func (o RequestOptions) followRedirects() bool {
	return o.AllowRedirects == nil || *o.AllowRedirects
}

func (o RequestOptions) recordHistory() bool {
	return o.History == nil || *o.History
}

// Requester executes a single HTTP exchange. Implementations must be
// safe for concurrent use.
type Requester interface {
	Request(ctx context.Context, method, url string, opts RequestOptions) (*Response, error)
}
