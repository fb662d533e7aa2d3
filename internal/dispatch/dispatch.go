// Package dispatch turns validated request payloads into outbound
// exchanges: it resolves the right requester, executes, optionally
// renders, and registers the response under a fresh handle.
package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/fetchbridge/internal/browser"
	"github.com/xkilldash9x/fetchbridge/internal/engine"
	"github.com/xkilldash9x/fetchbridge/internal/store"
	"github.com/xkilldash9x/fetchbridge/internal/worker"
)

// Dispatcher owns the session and response tables and the shared
// default client. Rendering is offloaded to the worker pool so the
// number of live browser processes stays bounded.
type Dispatcher struct {
	sessions  *store.Table[*engine.Session]
	responses *store.Table[*engine.Response]
	client    engine.Requester
	renderer  browser.Renderer
	pool      *worker.Pool
	logger    *zap.Logger
}

func New(sessions *store.Table[*engine.Session], responses *store.Table[*engine.Response], client engine.Requester, renderer browser.Renderer, pool *worker.Pool, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sessions:  sessions,
		responses: responses,
		client:    client,
		renderer:  renderer,
		pool:      pool,
		logger:    logger.Named("dispatch"),
	}
}

// Execute runs one parsed request end to end and returns the stored
// response's metadata. On any failure after the exchange completed,
// the response is released before the error surfaces so no handle
// leaks.
func (d *Dispatcher) Execute(ctx context.Context, req Request) (*Metadata, error) {
	requester, err := d.resolve(req.SessionID)
	if err != nil {
		return nil, err
	}

	resp, err := requester.Request(ctx, req.Method, req.URL, req.Options)
	if err != nil {
		return nil, err
	}

	if req.RenderEnabled {
		if err := d.render(ctx, resp, req.Render); err != nil {
			if closeErr := resp.Close(); closeErr != nil {
				d.logger.Debug("Failed to release response after render error", zap.Error(closeErr))
			}
			return nil, err
		}
	}

	id := d.responses.Create(resp)
	d.logger.Debug("Request executed",
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.String("response_id", id),
		zap.Int("status", resp.Status()),
		zap.Bool("rendered", req.RenderEnabled))

	return ProjectMetadata(id, resp), nil
}

// resolve picks the session-bound requester, or the shared default
// client when the request names no session.
func (d *Dispatcher) resolve(sessionID string) (engine.Requester, error) {
	if sessionID == "" {
		return d.client, nil
	}
	session, err := d.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (d *Dispatcher) render(ctx context.Context, resp *engine.Response, opts browser.RenderOptions) error {
	if d.renderer == nil || d.pool == nil {
		return fmt.Errorf("%w: rendering is not available", ErrInvalidRequest)
	}
	return d.pool.Do(ctx, func(jobCtx context.Context) error {
		return d.renderer.Render(jobCtx, resp, opts)
	})
}

// OpenSession creates a session from a parsed config and registers it.
func (d *Dispatcher) OpenSession(cfg engine.SessionConfig, opener func(engine.SessionConfig) (*engine.Session, error)) (string, error) {
	session, err := opener(cfg)
	if err != nil {
		return "", err
	}
	return d.sessions.Create(session), nil
}

// CloseSession removes and releases a session handle.
func (d *Dispatcher) CloseSession(id string) error {
	return d.sessions.Remove(id)
}

// Response returns a stored response by handle.
func (d *Dispatcher) Response(id string) (*engine.Response, error) {
	return d.responses.Get(id)
}

// ReleaseResponse removes and releases a response handle.
func (d *Dispatcher) ReleaseResponse(id string) error {
	return d.responses.Remove(id)
}

// Drain releases every live handle, responses before sessions so no
// body outlives its transport.
func (d *Dispatcher) Drain() {
	d.responses.Clear()
	d.sessions.Clear()
}
