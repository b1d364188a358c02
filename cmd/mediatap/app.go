package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/mediatap/broadcast"
	"github.com/use-agent/mediatap/cache"
	"github.com/use-agent/mediatap/capture"
	"github.com/use-agent/mediatap/classify"
	"github.com/use-agent/mediatap/collector"
	"github.com/use-agent/mediatap/config"
	"github.com/use-agent/mediatap/engine"
	"github.com/use-agent/mediatap/models"
	"github.com/use-agent/mediatap/schedule"
	"github.com/use-agent/mediatap/store"
)

// app wires the capture pipeline: store → hub → collector → engines.
type app struct {
	cfg        *config.Config
	store      store.Store
	hub        *broadcast.Hub
	col        *collector.Collector
	browser    *capture.Browser // nil when running without a browser
	dispatcher *engine.Dispatcher
	cache      *cache.Cache

	cancel context.CancelFunc
	tasks  []*schedule.Task
}

// newApp builds the pipeline. withBrowser=false skips launching Chromium;
// only the static engine is available then.
func newApp(cfg *config.Config, withBrowser bool) (*app, error) {
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, err
	}

	hub := broadcast.NewHub(cfg.Broadcast.SubscriberBuffer)
	profile := classify.ParseProfile(cfg.Classify.Profile)
	col := collector.New(st, profile,
		collector.WithHub(hub),
		collector.WithRebroadcast(cfg.Broadcast.RebroadcastDuplicates),
	)

	ctx, cancel := context.WithCancel(context.Background())
	a := &app{
		cfg:    cfg,
		store:  st,
		hub:    hub,
		col:    col,
		cache:  cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL),
		cancel: cancel,
	}

	for _, u := range cfg.Broadcast.Webhooks {
		sub := hub.Subscribe()
		go broadcast.NewWebhook(u, cfg.Broadcast.WebhookSecret).Run(ctx, sub)
	}

	a.tasks = append(a.tasks, schedule.Every(ctx, cfg.Broadcast.LogInterval, func(context.Context) {
		if n := st.Count(); n > 0 {
			slog.Info("total captured", "count", n)
		}
	}))

	var browserCapture engine.CaptureFunc
	if withBrowser {
		b, err := capture.New(cfg.Browser, cfg.Capture, col)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.browser = b
		browserCapture = b.Capture
	}

	engines, delays := buildEngines(cfg.Engine, cfg.Browser.DefaultProxy, col, browserCapture)
	a.dispatcher = engine.NewDispatcher(engines, delays, engine.NewDomainMemory(cfg.Engine.DomainMemoryTTL))

	names := make([]string, len(engines))
	for i, e := range engines {
		names[i] = e.Name()
	}
	slog.Info("capture pipeline ready",
		"store", cfg.Store.Backend,
		"profile", profile,
		"engines", names,
		"delays", delays,
		"webhooks", len(cfg.Broadcast.Webhooks),
	)
	return a, nil
}

// buildEngines orders the engines for the dispatcher. The static engine
// leads the race when multi-engine racing is on, and is the only engine
// without a browser (browserCapture nil). With racing off every capture
// goes to the browser. defaultProxy is the browser's launch proxy, shared
// with the static engine.
func buildEngines(cfg config.EngineConfig, defaultProxy string, col *collector.Collector, browserCapture engine.CaptureFunc) ([]engine.Engine, []time.Duration) {
	if browserCapture == nil {
		return []engine.Engine{engine.NewHTTPEngine(col, cfg.HTTPTimeout, cfg.RespectRobots, defaultProxy)}, []time.Duration{0}
	}

	rod := engine.NewRodEngine(browserCapture, false)
	rodStealth := engine.NewRodEngine(browserCapture, true)
	if !cfg.EnableMultiEngine {
		var stealthDelay time.Duration
		if len(cfg.EscalationDelays) > 2 {
			stealthDelay = cfg.EscalationDelays[2] - cfg.EscalationDelays[1]
		}
		return []engine.Engine{rod, rodStealth}, []time.Duration{0, stealthDelay}
	}
	httpEngine := engine.NewHTTPEngine(col, cfg.HTTPTimeout, cfg.RespectRobots, defaultProxy)
	return []engine.Engine{httpEngine, rod, rodStealth}, cfg.EscalationDelays
}

// poolStats is nil without a browser.
func (a *app) poolStats() func() models.PoolStats {
	if a.browser == nil {
		return nil
	}
	return a.browser.Stats
}

// Close stops background work and releases the browser and the store.
func (a *app) Close() {
	a.cancel()
	for _, t := range a.tasks {
		t.Stop()
	}
	if a.browser != nil {
		a.browser.Close()
	}
	a.hub.Close()
	if err := a.store.Close(); err != nil {
		slog.Warn("store close failed", "error", err)
	}
}
