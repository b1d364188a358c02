// Package api exposes the capture store and the capture engines over HTTP.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/mediatap/api/handler"
	"github.com/use-agent/mediatap/api/middleware"
	"github.com/use-agent/mediatap/broadcast"
	"github.com/use-agent/mediatap/cache"
	"github.com/use-agent/mediatap/collector"
	"github.com/use-agent/mediatap/config"
	"github.com/use-agent/mediatap/message"
	"github.com/use-agent/mediatap/models"
)

// Services are the components the routes are served from. Dispatcher and
// PoolStats may be nil when the server runs without a browser; /capture is
// then not registered.
type Services struct {
	Collector  *collector.Collector
	Hub        *broadcast.Hub
	Dispatcher handler.Dispatcher
	Cache      *cache.Cache
	PoolStats  func() models.PoolStats
	StartTime  time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring checks always work.
// The stream endpoint skips the rate limiter because one request lasts for
// the lifetime of the connection.
func NewRouter(cfg *config.Config, svc Services) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(svc.PoolStats, svc.Collector.Store(), svc.StartTime))

	authed := v1.Group("")
	if cfg.Auth.Enabled {
		authed.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	authed.GET("/stream", handler.Stream(svc.Hub))

	// Protected group: auth + rate limit.
	protected := authed.Group("")
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	var onClear []func()
	if svc.Cache != nil {
		onClear = append(onClear, svc.Cache.Flush)
	}
	msgs := message.NewHandler(svc.Collector, onClear...)
	protected.POST("/messages", handler.Messages(msgs))
	protected.GET("/urls", handler.ListURLs(msgs))
	protected.POST("/urls", handler.AddURL(msgs))
	protected.DELETE("/urls", handler.ClearURLs(msgs))
	protected.GET("/export", handler.Export(msgs))
	protected.GET("/downloads", handler.Downloads(msgs))

	protected.POST("/classify", handler.Classify(svc.Collector.Profile()))

	if svc.Dispatcher != nil {
		protected.POST("/capture", handler.Capture(svc.Dispatcher, svc.Collector.Store(), svc.Cache, cfg.Capture.BlockAds))
	}

	return r
}
