package store

import (
	"sync"
	"time"
)

// Memory is the in-process Store. Records are kept in first-seen order.
type Memory struct {
	mu      sync.RWMutex
	index   map[string]int
	records []Record
	minLen  int
	now     func() time.Time
}

// NewMemory creates an empty Memory store. minLen <= 0 selects
// DefaultMinLength.
func NewMemory(minLen int) *Memory {
	if minLen <= 0 {
		minLen = DefaultMinLength
	}
	return &Memory{
		index:  make(map[string]int),
		minLen: minLen,
		now:    time.Now,
	}
}

// Record implements Store.
func (m *Memory) Record(url, source, tabID string) (Record, bool, error) {
	if err := Admit(url, m.minLen); err != nil {
		return Record{}, false, err
	}
	rec, added := m.insert(Record{
		URL:       url,
		Source:    source,
		Timestamp: m.now().UnixMilli(),
		TabID:     tabID,
	})
	return rec, added, nil
}

// insert adds r if its URL is absent and returns the stored record. It
// skips admission so restored rows are accepted verbatim.
func (m *Memory) insert(r Record) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.index[r.URL]; ok {
		return m.records[i], false
	}
	m.index[r.URL] = len(m.records)
	m.records = append(m.records, r)
	return r, true
}

// List implements Store.
func (m *Memory) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	urls := make([]string, len(m.records))
	for i, r := range m.records {
		urls[i] = r.URL
	}
	return urls
}

// Records implements Store.
func (m *Memory) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Count implements Store.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Clear implements Store.
func (m *Memory) Clear() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.records)
	m.index = make(map[string]int)
	m.records = nil
	return n
}

// Export implements Store.
func (m *Memory) Export() Snapshot {
	return newSnapshot(m.Records())
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
