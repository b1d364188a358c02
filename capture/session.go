package capture

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/mediatap/collector"
	"github.com/use-agent/mediatap/engine"
	"github.com/use-agent/mediatap/models"
	"github.com/use-agent/mediatap/scanner"
	"github.com/use-agent/mediatap/schedule"
)

// extractGrace is kept out of the observe window so the final DOM scan
// still fits inside the capture deadline.
const extractGrace = 3 * time.Second

// settleDelay lets binding calls from the last rescan arrive.
const settleDelay = 150 * time.Millisecond

// Capture loads req.URL in a pooled tab and observes it.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Timeout guard          – hard deadline on the entire capture
//  2. Acquire page           – borrow a tab from the pool (or create one)
//  3. DEFER: teardown        – undo per-session hooks, about:blank, return to pool
//  4. Stealth injection      – before navigation
//  5. Observer + interceptor – before navigation, so the first request is seen
//  6. Extra headers
//  7. Navigate               – bounded by capture.navigation_timeout
//  8. Start the player       – click it and wait for playback (capture.click_player)
//  9. Observe                – watch the page, rescanning periodically
// 10. Final scan             – rendered DOM through the static scanner
func (b *Browser) Capture(ctx context.Context, req *engine.Request) (res *engine.Result, err error) {
	// ── 1. Timeout guard ──────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(ctx, b.clampTimeout(req.Timeout))
	defer cancel()

	// ── 2. Acquire page from pool ─────────────────────────────────────
	b.activePages.Add(1)
	defer b.activePages.Add(-1)

	page, err := b.pagePool.Get(func() (*rod.Page, error) {
		return b.browser.Page(proto.TargetCreateTarget{})
	})
	if err != nil {
		return nil, models.NewAPIError(models.ErrCodeBrowserCrash, "failed to acquire page from pool", err)
	}

	tabID := string(page.TargetID)
	tracker := engine.NewTracker(b.col)
	observe := func(c collector.Candidate) { tracker.Observe(c) }

	// ── 3. Teardown ───────────────────────────────────────────────────
	// Hooks are undone in reverse order using the context-free page, so
	// cleanup still works after the capture deadline has passed.
	sessCtx, endSession := context.WithCancel(ctx)
	var undo []func()
	defer func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		endSession()
		if fdErr := (proto.FetchDisable{}).Call(page); fdErr != nil {
			slog.Debug("cleanup: fetch disable failed", "error", fdErr)
		}
		if b.health.record(tabID, err == nil) {
			slog.Debug("retiring tab", "tab", tabID)
			_ = page.Close()
			// A nil entry makes the pool create a fresh tab on the next Get.
			b.pagePool.Put(nil)
			return
		}
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		b.pagePool.Put(page)
	}()

	// ── 4. Stealth injection ──────────────────────────────────────────
	if req.Stealth {
		if remove, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		} else {
			undo = append(undo, func() { _ = remove() })
		}
	}

	// ── 5. Observer + interceptor ─────────────────────────────────────
	if stop, err := installObserver(page, tabID, observe); err != nil {
		slog.Warn("page observer unavailable, relying on network interception", "error", err)
	} else {
		undo = append(undo, stop)
	}

	pol := newPolicy(b.captureCfg.BlockedResourceTypes, req.BlockAds)
	if err := startInterceptor(page.Context(sessCtx), page, tabID, pol, observe); err != nil {
		return nil, models.NewAPIError(models.ErrCodeBrowserCrash, "failed to enable request interception", err)
	}

	// ── 6. Extra headers (custom + Google Referer) ────────────────────
	if headers := extraHeaders(req.URL, req.Headers); len(headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(page)
		undo = append(undo, func() {
			_ = proto.NetworkSetExtraHTTPHeaders{Headers: proto.NetworkHeaders{}}.Call(page)
		})
	}

	// ── 7. Navigate ───────────────────────────────────────────────────
	navStart := time.Now()
	navCtx, navCancel := context.WithTimeout(sessCtx, b.captureCfg.NavigationTimeout)
	if err := page.Context(navCtx).Navigate(req.URL); err != nil {
		navCancel()
		return nil, categorizeError(err, "navigation to target URL failed")
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		slog.Debug("page load did not finish, observing anyway", "url", req.URL, "error", err)
	}
	navCancel()
	navigationMs := time.Since(navStart).Milliseconds()

	// ── 8. Start the player ───────────────────────────────────────────
	observeStart := time.Now()
	if b.captureCfg.ClickPlayer {
		clickPlayer(sessCtx, page, b.captureCfg.PlayWait)
	}

	// ── 9. Observe ────────────────────────────────────────────────────
	p := page.Context(sessCtx)
	rescans := schedule.Every(sessCtx, b.captureCfg.RescanInterval, func(context.Context) {
		if _, err := p.Eval(rescanJS); err != nil {
			slog.Debug("rescan failed", "url", req.URL, "error", err)
		}
	})
	waitFor(sessCtx, b.observeWindow(ctx, req.Observe))
	rescans.Stop()

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, categorizeError(ctx.Err(), "capture canceled")
	}
	if _, err := p.Eval(rescanJS); err == nil {
		waitFor(sessCtx, settleDelay)
	}
	observeMs := time.Since(observeStart).Milliseconds()

	// ── 10. Final scan of the rendered DOM ────────────────────────────
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	var title, siteName string
	if rawHTML, err := p.HTML(); err != nil {
		slog.Debug("failed to read rendered HTML", "url", req.URL, "error", err)
	} else if scanned, err := scanner.Scan(rawHTML, finalURL); err == nil {
		tracker.ObserveAll(scanned.Candidates(tabID))
		title, siteName = scanned.Title, scanned.SiteName
	}
	if title == "" {
		title = evalStringOrEmpty(p, `() => document.title`)
	}

	// Status code from the navigation timing entry, no Network events needed.
	var statusCode int
	if res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); err == nil {
		statusCode = res.Value.Int()
	}

	return &engine.Result{
		Found:        tracker.Found(),
		Title:        title,
		SiteName:     siteName,
		StatusCode:   statusCode,
		FinalURL:     finalURL,
		NavigationMs: navigationMs,
		ObserveMs:    observeMs,
	}, nil
}

// clampTimeout applies the configured default and ceiling.
func (b *Browser) clampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		d = b.captureCfg.DefaultTimeout
	}
	if b.captureCfg.MaxTimeout > 0 && d > b.captureCfg.MaxTimeout {
		d = b.captureCfg.MaxTimeout
	}
	return d
}

// observeWindow picks the requested (or configured) window and shortens it
// so the final scan fits before ctx's deadline.
func (b *Browser) observeWindow(ctx context.Context, requested time.Duration) time.Duration {
	d := requested
	if d <= 0 {
		d = b.captureCfg.ObserveWindow
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline) - extractGrace; d > left {
			d = max(left, 0)
		}
	}
	return d
}

// waitFor sleeps for d or until ctx is done.
func waitFor(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// extraHeaders merges custom headers over a Google search Referer.
func extraHeaders(target string, custom map[string]string) map[string]string {
	headers := make(map[string]string, len(custom)+1)
	if _, ok := custom["Referer"]; !ok {
		if u, err := url.Parse(target); err == nil && u.Hostname() != "" {
			headers["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
		}
	}
	for k, v := range custom {
		headers[k] = v
	}
	return headers
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors.
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to proto.NetworkHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed APIErrors so the API layer
// can map them to HTTP status codes.
func categorizeError(err error, msg string) *models.APIError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewAPIError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewAPIError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewAPIError(models.ErrCodeNavigation, msg, err)
	}
}
