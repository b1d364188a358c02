// Package store holds the deduplicated set of captured media URLs.
//
// Every backend keys records by the raw URL string: the first observation
// wins and later observations of the same URL are storage no-ops. There is
// no expiry and no size bound; a store only shrinks through Clear.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultMinLength is the shortest string accepted as a capture.
const DefaultMinLength = 10

// ErrRejected is returned by Admit for strings that can never be stored.
var ErrRejected = errors.New("store: rejected")

// rejectedPrefixes are schemes that never point at a fetchable resource.
var rejectedPrefixes = []string{"data:", "blob:", "chrome:", "about:"}

// Record is the first-seen metadata of a captured URL.
type Record struct {
	URL       string `json:"url"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	TabID     string `json:"tabId,omitempty"`
}

// Snapshot is the structured export of a store.
type Snapshot struct {
	Timestamp string   `json:"timestamp"`
	Count     int      `json:"count"`
	URLs      []string `json:"urls"`
	Metadata  []Record `json:"metadata"`
}

// Store is the capture store abstraction shared by every observation source.
// Implementations are safe for concurrent use.
type Store interface {
	// Record inserts url if absent. It returns the stored record (the
	// first-seen one for duplicates) and whether this call added it.
	// Inadmissible urls fail with an error wrapping ErrRejected.
	Record(url, source, tabID string) (rec Record, added bool, err error)

	// List returns all recorded URLs.
	List() []string

	// Records returns all records.
	Records() []Record

	// Count returns the number of records.
	Count() int

	// Clear empties the store and returns the prior count.
	Clear() int

	// Export returns a structured snapshot.
	Export() Snapshot

	// Close releases backend resources.
	Close() error
}

// Admit checks whether url may be stored at all.
func Admit(url string, minLen int) error {
	if url == "" {
		return fmt.Errorf("%w: empty url", ErrRejected)
	}
	if len(url) < minLen {
		return fmt.Errorf("%w: shorter than %d characters", ErrRejected, minLen)
	}
	low := strings.ToLower(url)
	for _, p := range rejectedPrefixes {
		if strings.HasPrefix(low, p) {
			return fmt.Errorf("%w: %s scheme", ErrRejected, strings.TrimSuffix(p, ":"))
		}
	}
	return nil
}

// newSnapshot builds a Snapshot from records in store order.
func newSnapshot(records []Record) Snapshot {
	urls := make([]string, len(records))
	for i, r := range records {
		urls[i] = r.URL
	}
	return Snapshot{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Count:     len(records),
		URLs:      urls,
		Metadata:  records,
	}
}
