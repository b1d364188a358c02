package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/mediatap/cache"
	"github.com/use-agent/mediatap/engine"
	"github.com/use-agent/mediatap/models"
	"github.com/use-agent/mediatap/store"
)

// Dispatcher runs a capture with the engine mode the client asked for.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *engine.Request, mode string) (*engine.Result, error)
}

// Capture returns a handler for POST /api/v1/capture.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults.
//  2. Cache lookup when max_age is set.
//  3. Dispatcher.Dispatch → URLs accepted during the session.
//  4. Fill totals, metadata and timing, return 200.
//  5. Cache store.
//
// blockAds is the server default for requests that do not set block_ads.
func Capture(d Dispatcher, st store.Store, cc *cache.Cache, blockAds bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.CaptureRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		req.Defaults()
		if req.ProxyURL != "" && req.Engine == "browser" {
			badRequest(c, "proxy_url is only supported by the http engine")
			return
		}
		cacheKey := cache.Key(req.URL, req.Engine, req.Stealth)

		// ── 2. Cache lookup ────────────────────────────────────────
		if cc != nil && req.MaxAge > 0 {
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				resp := *cached
				resp.CacheStatus = "hit"
				resp.Total = st.Count()
				resp.Timing = models.TimingInfo{
					TotalMs: time.Since(totalStart).Milliseconds(),
				}
				c.JSON(http.StatusOK, resp)
				return
			}
		}

		// ── 3. Capture ─────────────────────────────────────────────
		engReq := &engine.Request{
			URL:      req.URL,
			Headers:  req.Headers,
			Timeout:  time.Duration(req.Timeout) * time.Second,
			Observe:  time.Duration(req.ObserveMs) * time.Millisecond,
			Stealth:  req.Stealth,
			BlockAds: blockAds,
			ProxyURL: req.ProxyURL,
		}
		if req.BlockAds != nil {
			engReq.BlockAds = *req.BlockAds
		}

		result, err := d.Dispatch(c.Request.Context(), engReq, req.Engine)
		if errors.Is(err, engine.ErrNoMedia) {
			// The static engine loaded the page and found nothing.
			result, err = &engine.Result{FinalURL: req.URL, EngineName: "http"}, nil
		}
		if err != nil {
			apiErr := toAPIError(err)
			c.JSON(mapErrorToStatus(apiErr), models.CaptureResponse{
				Success: false,
				Found:   []models.FoundURL{},
				Error:   apiErr.ToDetail(),
				Timing:  models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()},
			})
			return
		}

		// ── 4. Fill response ───────────────────────────────────────
		found := make([]models.FoundURL, len(result.Found))
		for i, f := range result.Found {
			found[i] = models.FoundURL{URL: f.URL, Source: f.Source, New: f.New}
		}
		resp := &models.CaptureResponse{
			Success:    true,
			StatusCode: result.StatusCode,
			FinalURL:   result.FinalURL,
			Found:      found,
			NewCount:   result.NewCount(),
			Total:      st.Count(),
			Metadata: models.Metadata{
				Title:     result.Title,
				SiteName:  result.SiteName,
				SourceURL: req.URL,
			},
			EngineUsed: result.EngineName,
			Timing: models.TimingInfo{
				TotalMs:      time.Since(totalStart).Milliseconds(),
				NavigationMs: result.NavigationMs,
				ObserveMs:    result.ObserveMs,
			},
		}

		// ── 5. Cache store ─────────────────────────────────────────
		if cc != nil && req.MaxAge > 0 {
			cc.Set(cacheKey, resp)
			out := *resp
			out.CacheStatus = "miss"
			c.JSON(http.StatusOK, out)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
