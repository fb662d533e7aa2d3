// File: internal/network/compression.go
package network

import (
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// DecompressTransport is an http.RoundTripper that transparently negotiates
// and undoes response compression. It advertises br/gzip/deflate on outgoing
// requests and wraps the response body with the matching decoder(s), so the
// rest of the engine always sees plain bytes.
type DecompressTransport struct {
	// Base is the underlying transport. http.DefaultTransport if nil.
	Base http.RoundTripper
}

// NewDecompressTransport wraps base with transparent decompression.
func NewDecompressTransport(base http.RoundTripper) *DecompressTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DecompressTransport{Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *DecompressTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		// Brotli first; it usually compresses best.
		req.Header.Set("Accept-Encoding", "br, gzip, deflate, identity")
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := decompressResponse(resp); err != nil {
		// The body may be partially consumed at this point; it cannot be
		// handed to the caller in that state.
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

// bodyWrapper closes both the decoder and the underlying network body.
type bodyWrapper struct {
	io.ReadCloser
	original io.ReadCloser
}

func (w *bodyWrapper) Close() error {
	return errors.Join(w.ReadCloser.Close(), w.original.Close())
}

// decompressResponse wraps resp.Body with decoders for every layer listed in
// Content-Encoding, applied in reverse order. Supported layers: gzip, br,
// and deflate (zlib-wrapped or raw). On success the Content-Encoding and
// Content-Length headers are dropped since they no longer describe the body.
func decompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	for i := len(encodings) - 1; i >= 0; i-- {
		encoding := strings.ToLower(strings.TrimSpace(encodings[i]))

		var reader io.ReadCloser
		switch encoding {
		case "gzip":
			zr, err := gzip.NewReader(resp.Body)
			if err != nil {
				return fmt.Errorf("gzip initialization error: %w", err)
			}
			reader = zr
		case "deflate":
			dr, err := newDeflateReader(resp.Body)
			if err != nil {
				return fmt.Errorf("deflate initialization error: %w", err)
			}
			reader = dr
		case "br":
			reader = io.NopCloser(brotli.NewReader(resp.Body))
		case "identity", "":
			continue
		default:
			return fmt.Errorf("unsupported Content-Encoding layer: %s", encoding)
		}

		resp.Body = &bodyWrapper{ReadCloser: reader, original: resp.Body}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// newDeflateReader handles both flavors of "deflate" seen in the wild: the
// RFC-compliant zlib-wrapped stream and the bare DEFLATE stream some servers
// send. The zlib header is sniffed from the first two bytes.
func newDeflateReader(body io.Reader) (io.ReadCloser, error) {
	head := make([]byte, 2)
	n, err := io.ReadFull(body, head)
	if err == io.EOF {
		// Empty body; nothing to decode.
		return io.NopCloser(strings.NewReader("")), nil
	}
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}

	stitched := io.MultiReader(strings.NewReader(string(head[:n])), body)

	// A zlib stream starts with 0x78 and a check byte making the first
	// two bytes a multiple of 31.
	if n == 2 && head[0] == 0x78 && (uint16(head[0])<<8|uint16(head[1]))%31 == 0 {
		return zlib.NewReader(stitched)
	}
	return flate.NewReader(stitched), nil
}
