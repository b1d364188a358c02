package engine

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DomainMemory remembers which engine last captured media for each domain,
// so repeat captures skip the race. Entries expire after the TTL.
type DomainMemory struct {
	cache *gocache.Cache
}

// NewDomainMemory creates a DomainMemory whose entries live for ttl.
// Expired entries are pruned every hour.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	return &DomainMemory{cache: gocache.New(ttl, time.Hour)}
}

// Get returns the remembered engine name for a domain, or "" if not found / expired.
func (dm *DomainMemory) Get(domain string) string {
	if v, ok := dm.cache.Get(domain); ok {
		return v.(string)
	}
	return ""
}

// Set records which engine succeeded for a domain.
func (dm *DomainMemory) Set(domain, engineName string) {
	dm.cache.SetDefault(domain, engineName)
}

// Delete removes the memory for a domain (e.g. after the remembered engine fails).
func (dm *DomainMemory) Delete(domain string) {
	dm.cache.Delete(domain)
}

