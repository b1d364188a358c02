// Package cache keeps recent capture responses so repeated requests for the
// same page within a caller-chosen age skip the browser.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/use-agent/mediatap/models"
)

// entry holds a cached response with its creation timestamp.
type entry struct {
	response  *models.CaptureResponse
	createdAt time.Time
}

// Cache is an in-memory cache for capture responses.
// It is safe for concurrent use.
type Cache struct {
	items      *gocache.Cache
	maxEntries int
}

// New creates a Cache holding at most maxEntries responses, each for no
// longer than ttl. Expired entries are pruned every 5 minutes.
func New(maxEntries int, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		items:      gocache.New(ttl, 5*time.Minute),
		maxEntries: maxEntries,
	}
}

// Key generates a cache key from the URL, engine mode and stealth flag.
func Key(url, engine string, stealth bool) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(engine))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatBool(stealth)))
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached response if it exists and is younger than maxAge.
// maxAge is in milliseconds. If maxAge <= 0, no cache lookup is performed.
// Returns the response and whether it was a cache hit.
func (c *Cache) Get(key string, maxAgeMs int) (*models.CaptureResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}
	v, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	if time.Since(e.createdAt) > time.Duration(maxAgeMs)*time.Millisecond {
		return nil, false
	}
	return e.response, true
}

// Set stores a response in the cache. If the cache is at capacity,
// an arbitrary entry is evicted to make room.
func (c *Cache) Set(key string, resp *models.CaptureResponse) {
	if c.maxEntries > 0 && c.items.ItemCount() >= c.maxEntries {
		if _, exists := c.items.Get(key); !exists {
			// Map iteration order is random in Go.
			for k := range c.items.Items() {
				c.items.Delete(k)
				break
			}
		}
	}
	c.items.SetDefault(key, &entry{response: resp, createdAt: time.Now()})
}

// Flush drops every cached response.
func (c *Cache) Flush() {
	c.items.Flush()
}
