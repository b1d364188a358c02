package capture

import (
	"math"
	"sync"
	"time"
)

// Retirement thresholds for pooled tabs. A tab that keeps failing, has
// served many captures or is simply old is closed instead of reused, since
// long-lived tabs accumulate bindings, service workers and memory.
const (
	retireErrScore = 3.0
	retireUses     = 50
	retireAge      = 50 * time.Minute
)

// tabHealth tracks one pooled tab.
type tabHealth struct {
	errScore float64
	uses     int
	created  time.Time
}

// healthBook scores pooled tabs by target ID.
type healthBook struct {
	mu   sync.Mutex
	tabs map[string]*tabHealth
	now  func() time.Time
}

func newHealthBook() *healthBook {
	return &healthBook{tabs: make(map[string]*tabHealth), now: time.Now}
}

// record scores a finished capture on tab and reports whether the tab
// should be retired. A retired tab is forgotten.
func (h *healthBook) record(tab string, ok bool) (retire bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, found := h.tabs[tab]
	if !found {
		t = &tabHealth{created: h.now()}
		h.tabs[tab] = t
	}
	t.uses++
	if ok {
		t.errScore = math.Max(0, t.errScore-0.5)
	} else {
		t.errScore++
	}

	retire = t.errScore >= retireErrScore ||
		t.uses >= retireUses ||
		h.now().Sub(t.created) >= retireAge
	if retire {
		delete(h.tabs, tab)
	}
	return retire
}

// size returns the number of tabs being tracked.
func (h *healthBook) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tabs)
}
