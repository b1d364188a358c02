// Package collector is the single entry point for every observation source:
// a Candidate is classified, admitted to the store and, when accepted,
// published to live listeners.
package collector

import (
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/mediatap/broadcast"
	"github.com/use-agent/mediatap/classify"
	"github.com/use-agent/mediatap/store"
)

// Candidate is a string observed somewhere, plus where it came from.
type Candidate struct {
	URL         string
	Source      string // e.g. "request", "headers", "download", "page-dom"
	ContentType string // set by sources that saw response headers
	TabID       string

	// Direct candidates were already judged by their source and skip the
	// URL heuristics. Store admission still applies.
	Direct bool
}

// Outcome is what happened to a Candidate.
type Outcome int

const (
	// Ignored: the classifier said it is not media.
	Ignored Outcome = iota
	// Rejected: classified as media but refused by the store.
	Rejected
	// Added: new entry in the store.
	Added
	// Duplicate: already in the store.
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Rejected:
		return "rejected"
	case Added:
		return "added"
	case Duplicate:
		return "exists"
	default:
		return "ignored"
	}
}

// Accepted reports whether the candidate is (now) in the store.
func (o Outcome) Accepted() bool { return o == Added || o == Duplicate }

// Download is a media download that was intercepted and canceled.
type Download struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Filename  string `json:"filename,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Collector routes candidates from all sources into one store.
type Collector struct {
	store       store.Store
	profile     classify.Profile
	hub         *broadcast.Hub
	rebroadcast bool

	mu        sync.Mutex
	downloads []Download
}

// Option configures a Collector.
type Option func(*Collector)

// WithHub publishes accepted candidates to hub.
func WithHub(hub *broadcast.Hub) Option {
	return func(c *Collector) { c.hub = hub }
}

// WithRebroadcast publishes duplicates as well as new entries.
func WithRebroadcast(on bool) Option {
	return func(c *Collector) { c.rebroadcast = on }
}

// New creates a Collector writing to st with the given heuristics.
func New(st store.Store, profile classify.Profile, opts ...Option) *Collector {
	c := &Collector{store: st, profile: profile}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the backing store.
func (c *Collector) Store() store.Store { return c.store }

// Profile returns the active heuristics.
func (c *Collector) Profile() classify.Profile { return c.profile }

// Classify reports whether cand should be offered to the store.
// A content type, when present, decides on its own.
func (c *Collector) Classify(cand Candidate) bool {
	if cand.Direct {
		return true
	}
	if cand.ContentType != "" {
		return classify.IsMediaContentType(cand.ContentType)
	}
	return c.profile.LooksLikeMedia(cand.URL)
}

// Observe runs cand through the pipeline.
func (c *Collector) Observe(cand Candidate) Outcome {
	if !c.Classify(cand) {
		return Ignored
	}

	rec, added, err := c.store.Record(cand.URL, cand.Source, cand.TabID)
	switch {
	case err != nil:
		slog.Debug("media url rejected", "url", cand.URL, "source", cand.Source, "reason", err)
		return Rejected
	case added:
		total := c.store.Count()
		slog.Info("media url captured", "url", cand.URL, "source", cand.Source, "tab", cand.TabID, "total", total)
		c.publish(broadcast.CaptureEvent(rec, false, total))
		return Added
	}
	if c.rebroadcast {
		c.publish(broadcast.CaptureEvent(rec, true, c.store.Count()))
	}
	return Duplicate
}

// RecordDownload remembers a canceled download.
func (c *Collector) RecordDownload(d Download) {
	if d.Timestamp == 0 {
		d.Timestamp = time.Now().UnixMilli()
	}
	c.mu.Lock()
	c.downloads = append(c.downloads, d)
	c.mu.Unlock()
}

// Downloads returns a copy of the canceled downloads, oldest first.
func (c *Collector) Downloads() []Download {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Download, len(c.downloads))
	copy(out, c.downloads)
	return out
}

// Clear empties the store and the download list, returning the store's
// prior count.
func (c *Collector) Clear() int {
	n := c.store.Clear()
	c.mu.Lock()
	c.downloads = nil
	c.mu.Unlock()
	slog.Info("captured urls cleared", "count", n)
	c.publish(broadcast.ClearEvent(n))
	return n
}

func (c *Collector) publish(ev broadcast.Event) {
	if c.hub != nil {
		c.hub.Publish(ev)
	}
}
