package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"golang.org/x/net/html/charset"
)

// DefaultChunkSize is the slice size handed out by Stream.
const DefaultChunkSize = 64 * 1024

// Hop is one redirect the transport followed before the final
// response, oldest first.
type Hop struct {
	Status int
	URL    string
}

// Response wraps a completed exchange. The body is read lazily: Text
// and JSON buffer it in full on first use, Stream consumes it in
// fixed-size chunks exactly once. All methods are safe for concurrent
// use, and Close is idempotent.
type Response struct {
	status  int
	proto   string
	url     string
	headers http.Header
	cookies map[string]string
	elapsed time.Duration
	history []Hop

	mu       sync.Mutex
	body     io.ReadCloser
	buf      []byte
	buffered bool
	streamed bool
	closed   bool
}

func newResponse(resp *http.Response, elapsed time.Duration, history []Hop) *Response {
	cookies := make(map[string]string)
	for _, c := range resp.Cookies() {
		cookies[c.Name] = c.Value
	}
	finalURL := ""
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &Response{
		status:  resp.StatusCode,
		proto:   resp.Proto,
		url:     finalURL,
		headers: resp.Header,
		cookies: cookies,
		elapsed: elapsed,
		history: history,
		body:    resp.Body,
	}
}

// NewBufferedResponse builds a response around an in-memory body. Used
// by the renderer to replace a body with the post-execution DOM, and
// by tests.
func NewBufferedResponse(status int, url string, headers http.Header, body []byte) *Response {
	if headers == nil {
		headers = http.Header{}
	}
	return &Response{
		status:   status,
		proto:    "HTTP/1.1",
		url:      url,
		headers:  headers,
		cookies:  map[string]string{},
		buf:      body,
		buffered: true,
	}
}

func (r *Response) Status() int   { return r.status }
func (r *Response) Proto() string { return r.proto }
func (r *Response) URL() string   { return r.url }

// OK reports whether the status is below the client error range,
// mirroring the truthiness of the exchange.
func (r *Response) OK() bool { return r.status >= 200 && r.status < 400 }

// Reason is the standard reason phrase for the status code.
func (r *Response) Reason() string { return http.StatusText(r.status) }

func (r *Response) Headers() http.Header { return r.headers }

func (r *Response) Cookies() map[string]string { return r.cookies }

func (r *Response) Elapsed() time.Duration { return r.elapsed }

func (r *Response) History() []Hop { return r.history }

// ContentType returns the response media type, defaulting to an
// opaque byte stream when the origin sent none.
func (r *Response) ContentType() string {
	if ct := r.headers.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Encoding reports the declared charset, falling back to utf-8 for
// textual media types. Empty means unknown binary content.
func (r *Response) Encoding() string {
	ct := r.headers.Get("Content-Type")
	if mediaType, params, err := mime.ParseMediaType(ct); err == nil {
		if cs, ok := params["charset"]; ok {
			return strings.ToLower(cs)
		}
		if strings.HasPrefix(mediaType, "text/") || strings.HasSuffix(mediaType, "json") || strings.HasSuffix(mediaType, "xml") {
			return "utf-8"
		}
		return ""
	}
	return "utf-8"
}

// ensureBuffered drains the live body into memory. Safe to call any
// number of times; only the first does work. Callers hold r.mu.
func (r *Response) ensureBuffered() error {
	if r.buffered {
		return nil
	}
	r.buffered = true
	if r.body == nil {
		return nil
	}
	data, err := io.ReadAll(r.body)
	closeErr := r.body.Close()
	r.body = nil
	r.buf = data
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("closing response body: %w", closeErr)
	}
	return nil
}

// Text decodes the buffered body using the declared charset. Decoding
// is best effort: an unknown or broken encoding yields the raw bytes
// rather than an error.
func (r *Response) Text() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureBuffered(); err != nil {
		return "", err
	}
	if len(r.buf) == 0 {
		return "", nil
	}
	reader, err := charset.NewReader(bytes.NewReader(r.buf), r.headers.Get("Content-Type"))
	if err != nil {
		return string(r.buf), nil
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return string(r.buf), nil
	}
	return string(decoded), nil
}

// JSON decodes the buffered body into v. A body that is not valid
// JSON returns ErrNotJSON.
func (r *Response) JSON(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureBuffered(); err != nil {
		return err
	}
	if err := json.Unmarshal(r.buf, v); err != nil {
		return fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	return nil
}

// SetRenderedBody replaces the body with post-execution content,
// discarding whatever the wire delivered.
func (r *Response) SetRenderedBody(body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.body != nil {
		_ = r.body.Close()
		r.body = nil
	}
	r.buf = body
	r.buffered = true
	r.streamed = false
}

// Stream returns a single-use chunked reader over the body. A second
// call, or a call after Text/JSON consumed a live body, yields an
// already-exhausted stream.
func (r *Response) Stream(chunkSize int) *ChunkStream {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var src io.Reader
	switch {
	case r.buffered && !r.streamed:
		src = bytes.NewReader(r.buf)
		r.streamed = true
	case !r.buffered && r.body != nil:
		src = r.body
		r.streamed = true
	default:
		src = bytes.NewReader(nil)
	}
	return &ChunkStream{src: src, size: chunkSize}
}

// Close releases the underlying connection. Idempotent; the error is
// reported once and never resurfaced.
func (r *Response) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	return err
}

// ChunkStream hands out successive fixed-size slices of a response
// body. Next returns io.EOF once the body is exhausted.
type ChunkStream struct {
	src  io.Reader
	size int
	done bool
	err  error
}

// Next returns the next chunk. The final chunk may be shorter than
// the configured size.
func (s *ChunkStream) Next() ([]byte, error) {
	if s.done {
		if s.err != nil {
			err := s.err
			s.err = nil
			return nil, err
		}
		return nil, io.EOF
	}
	chunk := make([]byte, s.size)
	n, err := io.ReadFull(s.src, chunk)
	if err != nil {
		s.done = true
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			s.err = err
		}
	}
	if n > 0 {
		return chunk[:n], nil
	}
	if s.err != nil {
		err := s.err
		s.err = nil
		return nil, err
	}
	return nil, io.EOF
}
