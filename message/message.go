// Package message implements the query/command protocol clients use to read
// and manage captured URLs. Every request is a Message with a Type tag.
package message

import (
	"errors"
	"fmt"

	"github.com/use-agent/mediatap/collector"
	"github.com/use-agent/mediatap/store"
)

// Message types.
const (
	GetVideoURLs      = "getVideoUrls"
	ClearURLs         = "clearUrls"
	AddURL            = "addUrl"
	ExportJSON        = "exportJson"
	GetDownloadedURLs = "getDownloadedUrls"
)

// DefaultAddSource is the source recorded for addUrl without one.
const DefaultAddSource = "content"

// ErrUnknownMessage is returned for a Type the handler does not serve.
var ErrUnknownMessage = errors.New("unknown message type")

// Message is one request. URL and Source are only read by addUrl.
type Message struct {
	Type   string `json:"type" binding:"required"`
	URL    string `json:"url,omitempty"`
	Source string `json:"source,omitempty"`
}

// URLList answers getVideoUrls.
type URLList struct {
	URLs     []string       `json:"urls"`
	Count    int            `json:"count"`
	Metadata []store.Record `json:"metadata"`
}

// Status answers clearUrls and addUrl.
type Status struct {
	Status string `json:"status"`
	Count  *int   `json:"count,omitempty"`
}

// DownloadList answers getDownloadedUrls.
type DownloadList struct {
	Downloads []collector.Download `json:"downloads"`
}

// Handler serves messages against a collector.
type Handler struct {
	col     *collector.Collector
	onClear []func()
}

// NewHandler creates a Handler. onClear runs after every clearUrls, for
// state derived from the store such as cached capture responses.
func NewHandler(col *collector.Collector, onClear ...func()) *Handler {
	return &Handler{col: col, onClear: onClear}
}

// Handle dispatches m and returns a JSON-ready response.
func (h *Handler) Handle(m Message) (any, error) {
	switch m.Type {
	case GetVideoURLs:
		return h.List(), nil
	case ClearURLs:
		return h.Clear(), nil
	case AddURL:
		return h.Add(m.URL, m.Source), nil
	case ExportJSON:
		return h.col.Store().Export(), nil
	case GetDownloadedURLs:
		return DownloadList{Downloads: h.col.Downloads()}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, m.Type)
	}
}

// List returns every captured URL with its metadata.
func (h *Handler) List() URLList {
	recs := h.col.Store().Records()
	urls := make([]string, len(recs))
	for i, r := range recs {
		urls[i] = r.URL
	}
	return URLList{URLs: urls, Count: len(urls), Metadata: recs}
}

// Clear empties the store.
func (h *Handler) Clear() Status {
	n := h.col.Clear()
	for _, f := range h.onClear {
		f()
	}
	return Status{Status: "cleared", Count: &n}
}

// Add records url as reported by a content-side detector. The URL
// heuristics are skipped; store admission is not.
func (h *Handler) Add(url, source string) Status {
	if source == "" {
		source = DefaultAddSource
	}
	out := h.col.Observe(collector.Candidate{URL: url, Source: source, Direct: true})
	return Status{Status: out.String()}
}
