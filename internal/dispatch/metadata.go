package dispatch

import (
	"github.com/xkilldash9x/fetchbridge/internal/engine"
)

// Metadata is the wire projection of a stored response: everything a
// caller needs to decide what to do next, without the body. The body
// stays server-side until fetched through the response endpoints.
type Metadata struct {
	ResponseID  string            `json:"responseId"`
	Status      int               `json:"status"`
	Reason      string            `json:"reason"`
	OK          bool              `json:"ok"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers"`
	Cookies     map[string]string `json:"cookies"`
	ElapsedMs   *int64            `json:"elapsedMs,omitempty"`
	Encoding    string            `json:"encoding"`
	HTTPVersion string            `json:"httpVersion"`
	History     []HistoryEntry    `json:"history"`
}

// HistoryEntry is one redirect hop, oldest first.
type HistoryEntry struct {
	Status int    `json:"status"`
	URL    string `json:"url"`
}

// ProjectMetadata flattens a response into its wire shape. Multi-value
// headers collapse to their first value, matching how callers consume
// them.
func ProjectMetadata(id string, resp *engine.Response) *Metadata {
	headers := make(map[string]string, len(resp.Headers()))
	for name := range resp.Headers() {
		headers[name] = resp.Headers().Get(name)
	}

	history := make([]HistoryEntry, 0, len(resp.History()))
	for _, hop := range resp.History() {
		history = append(history, HistoryEntry{Status: hop.Status, URL: hop.URL})
	}

	// Elapsed is omitted rather than reported as zero when the
	// exchange was never timed.
	var elapsed *int64
	if d := resp.Elapsed(); d > 0 {
		ms := d.Milliseconds()
		elapsed = &ms
	}

	return &Metadata{
		ResponseID:  id,
		Status:      resp.Status(),
		Reason:      resp.Reason(),
		OK:          resp.OK(),
		URL:         resp.URL(),
		Headers:     headers,
		Cookies:     resp.Cookies(),
		ElapsedMs:   elapsed,
		Encoding:    resp.Encoding(),
		HTTPVersion: resp.Proto(),
		History:     history,
	}
}
