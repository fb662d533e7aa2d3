package dispatch

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/fetchbridge/internal/browser"
	"github.com/xkilldash9x/fetchbridge/internal/engine"
	"github.com/xkilldash9x/fetchbridge/internal/store"
	"github.com/xkilldash9x/fetchbridge/internal/worker"
)

// fakeRequester records the call and hands back a canned response.
type fakeRequester struct {
	lastMethod string
	lastURL    string
	lastOpts   engine.RequestOptions
	resp       *engine.Response
	err        error
}

func (f *fakeRequester) Request(_ context.Context, method, url string, opts engine.RequestOptions) (*engine.Response, error) {
	f.lastMethod = method
	f.lastURL = url
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

// fakeRenderer records the options it was invoked with.
type fakeRenderer struct {
	calls int
	opts  browser.RenderOptions
	body  string
	err   error
}

func (f *fakeRenderer) Render(_ context.Context, resp *engine.Response, opts browser.RenderOptions) error {
	f.calls++
	f.opts = opts
	if f.err != nil {
		return f.err
	}
	resp.SetRenderedBody([]byte(f.body))
	return nil
}

func newTestDispatcher(client engine.Requester, renderer browser.Renderer) *Dispatcher {
	logger := zap.NewNop()
	return New(
		store.New[*engine.Session](logger, "session"),
		store.New[*engine.Response](logger, "response"),
		client,
		renderer,
		worker.NewPool(1, logger),
		logger,
	)
}

func cannedResponse(status int) *engine.Response {
	headers := http.Header{"Content-Type": []string{"text/html; charset=utf-8"}}
	return engine.NewBufferedResponse(status, "http://example.com/page", headers, []byte("<html></html>"))
}

func TestDispatcherExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("routes to the default client and registers the response", func(t *testing.T) {
		client := &fakeRequester{resp: cannedResponse(200)}
		d := newTestDispatcher(client, nil)

		req, err := ParseRequest(map[string]any{
			"url":    "http://example.com/page",
			"method": "post",
			"json":   map[string]any{"k": "v"},
		})
		require.NoError(t, err)

		meta, err := d.Execute(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, http.MethodPost, client.lastMethod)
		assert.Equal(t, "http://example.com/page", client.lastURL)
		assert.NotNil(t, client.lastOpts.JSON)

		assert.NotEmpty(t, meta.ResponseID)
		assert.Equal(t, 200, meta.Status)
		assert.Equal(t, "OK", meta.Reason)
		assert.True(t, meta.OK)
		assert.Equal(t, "utf-8", meta.Encoding)
		assert.Nil(t, meta.ElapsedMs, "untimed exchanges carry no elapsed figure")

		stored, err := d.Response(meta.ResponseID)
		require.NoError(t, err)
		assert.Same(t, client.resp, stored)
	})

	t.Run("unknown session reports not found without executing", func(t *testing.T) {
		client := &fakeRequester{resp: cannedResponse(200)}
		d := newTestDispatcher(client, nil)

		req, err := ParseRequest(map[string]any{
			"url":       "http://example.com",
			"sessionId": "no-such-session",
		})
		require.NoError(t, err)

		_, err = d.Execute(ctx, req)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.Empty(t, client.lastMethod)
	})

	t.Run("execution failures register nothing", func(t *testing.T) {
		client := &fakeRequester{err: errors.New("connection refused")}
		d := newTestDispatcher(client, nil)

		req, err := ParseRequest(map[string]any{"url": "http://example.com"})
		require.NoError(t, err)

		_, err = d.Execute(ctx, req)
		require.Error(t, err)
		assert.Zero(t, d.responses.Len())
	})

	t.Run("render replaces the body before registration", func(t *testing.T) {
		client := &fakeRequester{resp: cannedResponse(200)}
		renderer := &fakeRenderer{body: "<html>rendered</html>"}
		d := newTestDispatcher(client, renderer)

		req, err := ParseRequest(map[string]any{
			"url":    "http://example.com",
			"render": map[string]any{"waitUntil": "load", "headless": false},
		})
		require.NoError(t, err)

		meta, err := d.Execute(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, 1, renderer.calls)
		assert.False(t, renderer.opts.Headless)
		assert.Equal(t, browser.WaitLoad, renderer.opts.WaitUntil)

		stored, err := d.Response(meta.ResponseID)
		require.NoError(t, err)
		text, err := stored.Text()
		require.NoError(t, err)
		assert.Equal(t, "<html>rendered</html>", text)
	})

	t.Run("render failure releases the response", func(t *testing.T) {
		client := &fakeRequester{resp: cannedResponse(200)}
		renderer := &fakeRenderer{err: errors.New("browser crashed")}
		d := newTestDispatcher(client, renderer)

		req, err := ParseRequest(map[string]any{
			"url":    "http://example.com",
			"render": true,
		})
		require.NoError(t, err)

		_, err = d.Execute(ctx, req)
		require.Error(t, err)
		assert.Zero(t, d.responses.Len())
	})

	t.Run("pass-through options reach the requester", func(t *testing.T) {
		client := &fakeRequester{resp: cannedResponse(200)}
		d := newTestDispatcher(client, nil)

		req, err := ParseRequest(map[string]any{
			"url":   "http://example.com",
			"files": map[string]any{"f": "payload"},
		})
		require.NoError(t, err)

		_, err = d.Execute(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"f": "payload"}, client.lastOpts.Extra["files"])
	})

	t.Run("render maps may carry engine specific extras", func(t *testing.T) {
		client := &fakeRequester{resp: cannedResponse(200)}
		renderer := &fakeRenderer{body: "<html>ok</html>"}
		d := newTestDispatcher(client, renderer)

		req, err := ParseRequest(map[string]any{
			"url":    "http://example.com",
			"render": map[string]any{"mockHuman": true},
		})
		require.NoError(t, err)

		_, err = d.Execute(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 1, renderer.calls)
		assert.True(t, renderer.opts.Headless)
	})
}

func TestDispatcherSessions(t *testing.T) {
	d := newTestDispatcher(&fakeRequester{}, nil)

	opener := func(cfg engine.SessionConfig) (*engine.Session, error) {
		return engine.OpenSession(cfg, nil, nil)
	}

	t.Run("open and close round trip", func(t *testing.T) {
		id, err := d.OpenSession(engine.SessionConfig{Browser: "chrome"}, opener)
		require.NoError(t, err)
		require.NotEmpty(t, id)

		require.NoError(t, d.CloseSession(id))
		assert.ErrorIs(t, d.CloseSession(id), store.ErrNotFound)
	})

	t.Run("opener failures create no handle", func(t *testing.T) {
		_, err := d.OpenSession(engine.SessionConfig{Browser: "netscape"}, opener)
		require.Error(t, err)
		assert.Zero(t, d.sessions.Len())
	})
}

func TestDispatcherRelease(t *testing.T) {
	d := newTestDispatcher(&fakeRequester{resp: cannedResponse(204)}, nil)

	req, err := ParseRequest(map[string]any{"url": "http://example.com"})
	require.NoError(t, err)

	meta, err := d.Execute(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, d.ReleaseResponse(meta.ResponseID))
	assert.ErrorIs(t, d.ReleaseResponse(meta.ResponseID), store.ErrNotFound)

	_, err = d.Response(meta.ResponseID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDispatcherDrain(t *testing.T) {
	d := newTestDispatcher(&fakeRequester{resp: cannedResponse(200)}, nil)

	req, err := ParseRequest(map[string]any{"url": "http://example.com"})
	require.NoError(t, err)
	_, err = d.Execute(context.Background(), req)
	require.NoError(t, err)

	id, err := d.OpenSession(engine.SessionConfig{}, func(cfg engine.SessionConfig) (*engine.Session, error) {
		return engine.OpenSession(cfg, nil, nil)
	})
	require.NoError(t, err)

	d.Drain()
	assert.Zero(t, d.responses.Len())
	assert.Zero(t, d.sessions.Len())
	assert.ErrorIs(t, d.CloseSession(id), store.ErrNotFound)
}
