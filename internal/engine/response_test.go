package engine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseText(t *testing.T) {
	t.Run("plain utf-8", func(t *testing.T) {
		resp := NewBufferedResponse(200, "http://example.com", http.Header{
			"Content-Type": []string{"text/plain; charset=utf-8"},
		}, []byte("hello world"))
		text, err := resp.Text()
		require.NoError(t, err)
		assert.Equal(t, "hello world", text)
	})

	t.Run("latin-1 is transcoded", func(t *testing.T) {
		// "café" in ISO-8859-1: the é is a single 0xE9 byte.
		resp := NewBufferedResponse(200, "http://example.com", http.Header{
			"Content-Type": []string{"text/plain; charset=iso-8859-1"},
		}, []byte{'c', 'a', 'f', 0xE9})
		text, err := resp.Text()
		require.NoError(t, err)
		assert.Equal(t, "café", text)
	})

	t.Run("unknown charset falls back to raw bytes", func(t *testing.T) {
		resp := NewBufferedResponse(200, "http://example.com", http.Header{
			"Content-Type": []string{"text/plain; charset=x-nonsense"},
		}, []byte("raw"))
		text, err := resp.Text()
		require.NoError(t, err)
		assert.Equal(t, "raw", text)
	})

	t.Run("empty body", func(t *testing.T) {
		resp := NewBufferedResponse(204, "http://example.com", nil, nil)
		text, err := resp.Text()
		require.NoError(t, err)
		assert.Empty(t, text)
	})
}

func TestResponseJSON(t *testing.T) {
	t.Run("valid object", func(t *testing.T) {
		resp := NewBufferedResponse(200, "http://example.com", nil, []byte(`{"name":"ok","count":3}`))
		var out map[string]any
		require.NoError(t, resp.JSON(&out))
		assert.Equal(t, "ok", out["name"])
	})

	t.Run("invalid body reports ErrNotJSON", func(t *testing.T) {
		resp := NewBufferedResponse(200, "http://example.com", nil, []byte("<html>"))
		var out any
		err := resp.JSON(&out)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotJSON)
	})
}

func TestResponseStream(t *testing.T) {
	t.Run("chunks at configured size", func(t *testing.T) {
		body := strings.Repeat("a", 100)
		resp := NewBufferedResponse(200, "http://example.com", nil, []byte(body))

		stream := resp.Stream(64)
		first, err := stream.Next()
		require.NoError(t, err)
		assert.Len(t, first, 64)

		second, err := stream.Next()
		require.NoError(t, err)
		assert.Len(t, second, 36)

		_, err = stream.Next()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("second stream is exhausted", func(t *testing.T) {
		resp := NewBufferedResponse(200, "http://example.com", nil, []byte("payload"))

		first := resp.Stream(DefaultChunkSize)
		chunk, err := first.Next()
		require.NoError(t, err)
		assert.Equal(t, "payload", string(chunk))

		second := resp.Stream(DefaultChunkSize)
		_, err = second.Next()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("consumes a live body exactly once", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("b", 10)))
		}))
		defer srv.Close()

		resp := doGet(t, srv.URL)
		defer func() { _ = resp.Close() }()

		stream := resp.Stream(4)
		var total int
		for {
			chunk, err := stream.Next()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			total += len(chunk)
		}
		assert.Equal(t, 10, total)
	})
}

func TestResponseSetRenderedBody(t *testing.T) {
	resp := NewBufferedResponse(200, "http://example.com", nil, []byte("before"))
	resp.SetRenderedBody([]byte("<html>after</html>"))

	text, err := resp.Text()
	require.NoError(t, err)
	assert.Equal(t, "<html>after</html>", text)

	chunk, err := resp.Stream(DefaultChunkSize).Next()
	require.NoError(t, err)
	assert.Equal(t, "<html>after</html>", string(chunk))
}

func TestResponseCloseIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	resp := doGet(t, srv.URL)
	require.NoError(t, resp.Close())
	require.NoError(t, resp.Close())
}

func TestResponseMetadata(t *testing.T) {
	headers := http.Header{"Content-Type": []string{"application/json; charset=utf-8"}}

	t.Run("ok range", func(t *testing.T) {
		assert.True(t, NewBufferedResponse(200, "", nil, nil).OK())
		assert.True(t, NewBufferedResponse(302, "", nil, nil).OK())
		assert.False(t, NewBufferedResponse(404, "", nil, nil).OK())
		assert.False(t, NewBufferedResponse(500, "", nil, nil).OK())
	})

	t.Run("reason phrase", func(t *testing.T) {
		assert.Equal(t, "Not Found", NewBufferedResponse(404, "", nil, nil).Reason())
	})

	t.Run("content type defaults to octet-stream", func(t *testing.T) {
		assert.Equal(t, "application/octet-stream", NewBufferedResponse(200, "", nil, nil).ContentType())
		assert.Equal(t, "application/json; charset=utf-8", NewBufferedResponse(200, "", headers, nil).ContentType())
	})

	t.Run("encoding", func(t *testing.T) {
		assert.Equal(t, "utf-8", NewBufferedResponse(200, "", headers, nil).Encoding())

		binary := http.Header{"Content-Type": []string{"image/png"}}
		assert.Empty(t, NewBufferedResponse(200, "", binary, nil).Encoding())

		declared := http.Header{"Content-Type": []string{"text/html; charset=ISO-8859-1"}}
		assert.Equal(t, "iso-8859-1", NewBufferedResponse(200, "", declared, nil).Encoding())
	})
}

// doGet runs a plain request through the stateless client against a
// local test server.
func doGet(t *testing.T, url string) *Response {
	t.Helper()
	client := NewClient(nil, nil)
	resp, err := client.Request(context.Background(), http.MethodGet, url, RequestOptions{})
	require.NoError(t, err)
	return resp
}
