package engine

import (
	"context"
	"errors"
	"time"
)

// ErrNoMedia is returned by an engine that loaded the page but accepted no
// media URL. The dispatcher treats it like any other failure and escalates.
var ErrNoMedia = errors.New("no media found")

// ErrProxyUnsupported is returned by browser engines for a request carrying
// its own proxy: the browser proxy is fixed at launch.
var ErrProxyUnsupported = errors.New("per-request proxy is only supported by the http engine")

// Engine is the interface that all capture engines must implement.
type Engine interface {
	// Name returns the engine identifier (e.g. "http", "rod", "rod-stealth").
	Name() string

	// Capture loads the page and feeds everything it observes to the
	// collector, returning what was accepted.
	Capture(ctx context.Context, req *Request) (*Result, error)
}

// Request contains everything an engine needs to capture a page.
type Request struct {
	URL      string
	Headers  map[string]string
	Timeout  time.Duration
	Observe  time.Duration // how long a browser watches the loaded page
	Stealth  bool
	BlockAds bool
	ProxyURL string // http engine only; overrides the default proxy
}

// Found is one media URL accepted during a capture.
type Found struct {
	URL    string
	Source string
	New    bool // false when the store already had it
}

// Result is the output of a successful capture.
type Result struct {
	Found      []Found
	Title      string
	SiteName   string
	StatusCode int
	FinalURL   string
	EngineName string

	NavigationMs int64
	ObserveMs    int64
}

// NewCount returns how many entries of Found were new to the store.
func (r *Result) NewCount() int {
	n := 0
	for _, f := range r.Found {
		if f.New {
			n++
		}
	}
	return n
}
