package engine

import (
	"sync"

	"github.com/use-agent/mediatap/collector"
)

// Tracker feeds candidates to a collector and remembers which of them were
// accepted during one capture. Safe for concurrent use by event handlers.
type Tracker struct {
	col *collector.Collector

	mu     sync.Mutex
	seen   map[string]struct{}
	found  []Found
	direct int
}

// NewTracker creates a Tracker for one capture.
func NewTracker(col *collector.Collector) *Tracker {
	return &Tracker{col: col, seen: make(map[string]struct{})}
}

// Observe passes cand to the collector and records it if accepted.
func (t *Tracker) Observe(cand collector.Candidate) collector.Outcome {
	out := t.col.Observe(cand)
	if !out.Accepted() {
		return out
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.seen[cand.URL]; !dup {
		t.seen[cand.URL] = struct{}{}
		t.found = append(t.found, Found{URL: cand.URL, Source: cand.Source, New: out == collector.Added})
		if cand.Direct || cand.ContentType != "" {
			t.direct++
		}
	}
	return out
}

// ObserveAll observes each candidate in order.
func (t *Tracker) ObserveAll(cands []collector.Candidate) {
	for _, c := range cands {
		t.Observe(c)
	}
}

// Found returns the accepted URLs in observation order.
func (t *Tracker) Found() []Found {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Found, len(t.found))
	copy(out, t.found)
	return out
}

// DirectLen counts accepted URLs that came from direct evidence (a media
// element, a player variable, a media content type) rather than from the
// URL heuristics alone.
func (t *Tracker) DirectLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.direct
}
