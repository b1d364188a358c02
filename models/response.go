package models

// CaptureResponse is the response for POST /api/v1/capture.
type CaptureResponse struct {
	// Success indicates whether the capture completed without errors.
	Success bool `json:"success"`

	// StatusCode is the HTTP status of the main document, when known.
	StatusCode int `json:"status_code,omitempty"`

	// FinalURL is the URL after following all redirects.
	FinalURL string `json:"final_url"`

	// Found lists every media URL accepted during this capture, in the
	// order it was observed.
	Found []FoundURL `json:"found"`

	// NewCount is how many entries of Found were not in the store before.
	NewCount int `json:"new_count"`

	// Total is the store size after the capture.
	Total int `json:"total"`

	// Metadata contains extracted page metadata.
	Metadata Metadata `json:"metadata"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// EngineUsed is the engine that produced the result ("http" or "rod").
	EngineUsed string `json:"engine_used,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// FoundURL is one media URL accepted during a capture.
type FoundURL struct {
	URL    string `json:"url"`
	Source string `json:"source"`
	New    bool   `json:"new"`
}

// Metadata holds page-level information extracted during capture.
type Metadata struct {
	Title     string `json:"title"`
	SiteName  string `json:"site_name,omitempty"`
	SourceURL string `json:"source_url"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// NavigationMs is the time spent fetching or navigating to the page.
	NavigationMs int64 `json:"navigation_ms"`

	// ObserveMs is the time spent watching the loaded page.
	ObserveMs int64 `json:"observe_ms"`
}

// ClassifyResponse reports every classifier verdict for one input.
type ClassifyResponse struct {
	URL              string `json:"url"`
	ContentType      string `json:"content_type,omitempty"`
	Profile          string `json:"profile"`
	Extension        bool   `json:"extension"`
	Keyword          bool   `json:"keyword"`
	LooksLikeMedia   bool   `json:"looks_like_media"`
	MediaContentType bool   `json:"media_content_type"`
	Accepted         bool   `json:"accepted"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	Captured  int       `json:"captured"`
	PoolStats PoolStats `json:"pool_stats"`
	Host      HostStats `json:"host"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
	BrowserPID  int `json:"browser_pid"`
}

// HostStats reports host memory pressure.
type HostStats struct {
	MemUsedPercent float64 `json:"mem_used_percent"`
	MemAvailableMB uint64  `json:"mem_available_mb"`
}
