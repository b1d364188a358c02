package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/mediatap/broadcast"
	"github.com/use-agent/mediatap/cache"
	"github.com/use-agent/mediatap/classify"
	"github.com/use-agent/mediatap/collector"
	"github.com/use-agent/mediatap/config"
	"github.com/use-agent/mediatap/engine"
	"github.com/use-agent/mediatap/models"
	"github.com/use-agent/mediatap/store"
)

type fakeDispatcher struct {
	calls atomic.Int32
	mode  string
	req   *engine.Request
	res   *engine.Result
	err   error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req *engine.Request, mode string) (*engine.Result, error) {
	f.calls.Add(1)
	f.mode, f.req = mode, req
	return f.res, f.err
}

type testEnv struct {
	cfg  *config.Config
	col  *collector.Collector
	hub  *broadcast.Hub
	disp *fakeDispatcher
	h    http.Handler
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.Server.Mode = "test"
	if mutate != nil {
		mutate(cfg)
	}

	hub := broadcast.NewHub(8)
	t.Cleanup(hub.Close)
	col := collector.New(store.NewMemory(0), classify.Broad, collector.WithHub(hub))
	disp := &fakeDispatcher{}

	h := NewRouter(cfg, Services{
		Collector:  col,
		Hub:        hub,
		Dispatcher: disp,
		Cache:      cache.New(10, time.Hour),
		PoolStats:  func() models.PoolStats { return models.PoolStats{MaxPages: 5, ActivePages: 5} },
		StartTime:  time.Now(),
	})
	return &testEnv{cfg: cfg, col: col, hub: hub, disp: disp, h: h}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Auth.Enabled = true
		c.Auth.APIKeys = []string{"secret"}
	})
	env.col.Observe(collector.Candidate{URL: "https://example.com/a.mp4", Source: "request"})

	w := env.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health without key = %d, want 200", w.Code)
	}
	resp := decode[models.HealthResponse](t, w)
	if resp.Status != "degraded" {
		t.Errorf("Status = %q, want degraded with a full pool", resp.Status)
	}
	if resp.Captured != 1 {
		t.Errorf("Captured = %d, want 1", resp.Captured)
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Auth.Enabled = true
		c.Auth.APIKeys = []string{"secret"}
	})

	if w := env.do(t, http.MethodGet, "/api/v1/urls", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no key = %d, want 401", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/urls", "", "X-API-Key", "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key = %d, want 401", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/urls", "", "Authorization", "Bearer secret"); w.Code != http.StatusOK {
		t.Errorf("bearer key = %d, want 200", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/urls?api_key=secret", ""); w.Code != http.StatusOK {
		t.Errorf("query key = %d, want 200", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimit.RequestsPerSecond = 0.001
		c.RateLimit.Burst = 1
	})

	if w := env.do(t, http.MethodGet, "/api/v1/urls", ""); w.Code != http.StatusOK {
		t.Fatalf("first request = %d", w.Code)
	}
	w := env.do(t, http.MethodGet, "/api/v1/urls", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", w.Code)
	}
	if resp := decode[models.ErrorResponse](t, w); resp.Error.Code != models.ErrCodeRateLimited {
		t.Errorf("code = %q", resp.Error.Code)
	}
}

func TestMessages(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/messages", `{"type":"addUrl","url":"https://example.com/embed/player"}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"added"`) {
		t.Fatalf("addUrl = %d %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodPost, "/api/v1/messages", `{"type":"addUrl","url":"https://example.com/embed/player"}`)
	if !strings.Contains(w.Body.String(), `"exists"`) {
		t.Errorf("repeat addUrl = %s", w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/api/v1/messages", `{"type":"getVideoUrls"}`)
	list := decode[struct {
		URLs  []string `json:"urls"`
		Count int      `json:"count"`
	}](t, w)
	if list.Count != 1 || list.URLs[0] != "https://example.com/embed/player" {
		t.Errorf("getVideoUrls = %+v", list)
	}

	w = env.do(t, http.MethodPost, "/api/v1/messages", `{"type":"clearUrls"}`)
	if !strings.Contains(w.Body.String(), `"cleared"`) {
		t.Errorf("clearUrls = %s", w.Body.String())
	}
	w = env.do(t, http.MethodPost, "/api/v1/messages", `{"type":"getVideoUrls"}`)
	if !strings.Contains(w.Body.String(), `"urls":[]`) {
		t.Errorf("getVideoUrls after clear = %s", w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/api/v1/messages", `{"type":"selfDestruct"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown type = %d, want 400", w.Code)
	}
	if resp := decode[models.ErrorResponse](t, w); resp.Error.Code != models.ErrCodeUnknownMessage {
		t.Errorf("code = %q, want UNKNOWN_MESSAGE", resp.Error.Code)
	}

	w = env.do(t, http.MethodPost, "/api/v1/messages", `{not json`)
	if resp := decode[models.ErrorResponse](t, w); w.Code != http.StatusBadRequest || resp.Error.Code != models.ErrCodeInvalidInput {
		t.Errorf("bad json = %d %+v", w.Code, resp.Error)
	}
}

func TestRESTAliases(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/urls", `{"url":"https://cdn.example.com/hls/master.m3u8","source":"manual"}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"added"`) {
		t.Fatalf("POST /urls = %d %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodPost, "/api/v1/urls", `{"url":"data:video/mp4;base64,AAAA"}`); !strings.Contains(w.Body.String(), `"rejected"`) {
		t.Errorf("data url = %s", w.Body.String())
	}
	if w := env.do(t, http.MethodPost, "/api/v1/urls", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing url = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/export?download=1", "")
	snap := decode[store.Snapshot](t, w)
	if snap.Count != 1 || snap.Metadata[0].Source != "manual" {
		t.Errorf("export = %+v", snap)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/downloads", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"downloads"`) {
		t.Errorf("downloads = %d %s", w.Code, w.Body.String())
	}

	if w := env.do(t, http.MethodDelete, "/api/v1/urls", ""); !strings.Contains(w.Body.String(), `"count":1`) {
		t.Errorf("DELETE /urls = %s", w.Body.String())
	}
	if env.col.Store().Count() != 0 {
		t.Error("store should be empty")
	}
}

func TestClassify(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name     string
		body     string
		accepted bool
		profile  string
	}{
		{"extension", `{"url":"https://x.com/a.webm?t=1"}`, true, "broad"},
		{"plain page", `{"url":"https://x.com/about"}`, false, "broad"},
		{"strict profile", `{"url":"https://x.com/playlist.json","profile":"strict"}`, false, "strict"},
		{"content type wins", `{"url":"https://x.com/about","content_type":"application/vnd.apple.mpegurl"}`, true, "broad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/classify", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d %s", w.Code, w.Body.String())
			}
			resp := decode[models.ClassifyResponse](t, w)
			if resp.Accepted != tt.accepted || resp.Profile != tt.profile {
				t.Errorf("got %+v", resp)
			}
		})
	}

	if w := env.do(t, http.MethodPost, "/api/v1/classify", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty classify = %d, want 400", w.Code)
	}
}

func TestCapture(t *testing.T) {
	env := newTestEnv(t, nil)
	env.disp.res = &engine.Result{
		Found:      []engine.Found{{URL: "https://cdn.example.com/a.m3u8", Source: "request", New: true}},
		Title:      "Clip",
		StatusCode: 200,
		FinalURL:   "https://example.com/watch",
		EngineName: "rod",
	}

	body := `{"url":"https://example.com/watch","timeout":30,"observe_ms":2000,"block_ads":false,"engine":"browser","max_age":60000}`
	w := env.do(t, http.MethodPost, "/api/v1/capture", body)
	if w.Code != http.StatusOK {
		t.Fatalf("capture = %d %s", w.Code, w.Body.String())
	}
	resp := decode[models.CaptureResponse](t, w)
	if !resp.Success || len(resp.Found) != 1 || resp.NewCount != 1 || resp.EngineUsed != "rod" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.CacheStatus != "miss" || resp.Metadata.Title != "Clip" {
		t.Errorf("CacheStatus = %q, Title = %q", resp.CacheStatus, resp.Metadata.Title)
	}
	if env.disp.mode != "browser" || env.disp.req.Timeout != 30*time.Second ||
		env.disp.req.Observe != 2*time.Second || env.disp.req.BlockAds {
		t.Errorf("dispatched mode=%q req=%+v", env.disp.mode, env.disp.req)
	}

	w = env.do(t, http.MethodPost, "/api/v1/capture", body)
	if resp := decode[models.CaptureResponse](t, w); resp.CacheStatus != "hit" {
		t.Errorf("second capture CacheStatus = %q, want hit", resp.CacheStatus)
	}
	if env.disp.calls.Load() != 1 {
		t.Errorf("dispatcher called %d times, want 1", env.disp.calls.Load())
	}
}

func TestClearURLs_FlushesCaptureCache(t *testing.T) {
	env := newTestEnv(t, nil)
	env.disp.res = &engine.Result{
		Found:      []engine.Found{{URL: "https://cdn.example.com/a.m3u8", Source: "request", New: true}},
		EngineName: "rod",
	}
	body := `{"url":"https://example.com/watch","max_age":60000}`

	env.do(t, http.MethodPost, "/api/v1/capture", body)
	if w := env.do(t, http.MethodDelete, "/api/v1/urls", ""); w.Code != http.StatusOK {
		t.Fatalf("clear = %d", w.Code)
	}
	w := env.do(t, http.MethodPost, "/api/v1/capture", body)
	if resp := decode[models.CaptureResponse](t, w); resp.CacheStatus != "miss" {
		t.Errorf("CacheStatus after clear = %q, want miss", resp.CacheStatus)
	}
	if env.disp.calls.Load() != 2 {
		t.Errorf("dispatcher called %d times, want 2", env.disp.calls.Load())
	}
}

func TestCapture_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"timeout", models.NewAPIError(models.ErrCodeTimeout, "slow", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"navigation", models.NewAPIError(models.ErrCodeNavigation, "dns", nil), http.StatusBadGateway},
		{"bare deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"no media", engine.ErrNoMedia, http.StatusOK},
		{"browser proxy", fmt.Errorf("rod: %w", engine.ErrProxyUnsupported), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.disp.err = tt.err
			w := env.do(t, http.MethodPost, "/api/v1/capture", `{"url":"https://example.com/watch"}`)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.wantCode, w.Body.String())
			}
			if env.disp.mode != "auto" {
				t.Errorf("default mode = %q, want auto", env.disp.mode)
			}
		})
	}

	env := newTestEnv(t, nil)
	if w := env.do(t, http.MethodPost, "/api/v1/capture", `{"url":"not a url"}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid url = %d, want 400", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/capture", `{"url":"https://example.com","engine":"warp"}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid engine = %d, want 400", w.Code)
	}
}

func TestCapture_ProxyURL(t *testing.T) {
	env := newTestEnv(t, nil)
	env.disp.res = &engine.Result{EngineName: "http"}

	w := env.do(t, http.MethodPost, "/api/v1/capture",
		`{"url":"https://example.com/watch","engine":"browser","proxy_url":"http://proxy.example.com:3128"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("browser + proxy_url = %d, want 400", w.Code)
	}
	if env.disp.calls.Load() != 0 {
		t.Error("a rejected request should not be dispatched")
	}

	w = env.do(t, http.MethodPost, "/api/v1/capture",
		`{"url":"https://example.com/watch","engine":"http","proxy_url":"http://proxy.example.com:3128"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("http + proxy_url = %d %s", w.Code, w.Body.String())
	}
	if env.disp.req.ProxyURL != "http://proxy.example.com:3128" {
		t.Errorf("ProxyURL = %q, want it passed through", env.disp.req.ProxyURL)
	}
}

func TestStream(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	defer resp.Body.Close()

	for env.hub.Subscribers() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("stream never subscribed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	env.col.Observe(collector.Candidate{URL: "https://cdn.example.com/live.m3u8", Source: "request"})

	sc := bufio.NewScanner(resp.Body)
	var sawEvent, sawData bool
	for sc.Scan() {
		line := sc.Bytes()
		if bytes.HasPrefix(line, []byte("event:")) && bytes.Contains(line, []byte(broadcast.EventCapture)) {
			sawEvent = true
		}
		if sawEvent && bytes.HasPrefix(line, []byte("data:")) {
			sawData = bytes.Contains(line, []byte("live.m3u8"))
			break
		}
	}
	if !sawEvent || !sawData {
		t.Errorf("stream did not deliver the capture event (event=%v data=%v)", sawEvent, sawData)
	}
}
