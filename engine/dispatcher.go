package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// Engine selection modes accepted by Dispatch.
const (
	ModeAuto    = "auto"
	ModeHTTP    = "http"
	ModeBrowser = "browser"
)

// Dispatcher picks the engine(s) for a capture. In auto mode it races them
// with staged starts: engines[i] begins escalationDelays[i] after the race,
// unless an earlier engine already found media.
type Dispatcher struct {
	engines []Engine
	delays  []time.Duration
	memory  *DomainMemory
}

// NewDispatcher creates a Dispatcher. Missing delays default to 0.
func NewDispatcher(engines []Engine, escalationDelays []time.Duration, memory *DomainMemory) *Dispatcher {
	delays := make([]time.Duration, len(engines))
	copy(delays, escalationDelays)
	return &Dispatcher{engines: engines, delays: delays, memory: memory}
}

// Dispatch captures req according to mode. "http" runs only the static
// engine, "browser" runs the browser engines in escalation order, and
// "auto" (or "") tries the engine remembered for the domain before racing
// every engine.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request, mode string) (*Result, error) {
	switch mode {
	case ModeHTTP:
		return d.sequence(ctx, req, func(e Engine) bool { return e.Name() == httpTab })
	case ModeBrowser:
		return d.sequence(ctx, req, func(e Engine) bool { return e.Name() != httpTab })
	case ModeAuto, "":
	default:
		return nil, fmt.Errorf("dispatcher: unknown engine mode %q", mode)
	}

	domain := extractDomain(req.URL)
	if res, ok := d.recall(ctx, req, domain); ok {
		return res, nil
	}
	return d.race(ctx, req, domain)
}

// recall runs the engine that last won for domain. A failing entry is
// forgotten so the caller falls back to a full race.
func (d *Dispatcher) recall(ctx context.Context, req *Request, domain string) (*Result, bool) {
	name := d.memory.Get(domain)
	if name == "" {
		return nil, false
	}
	for _, eng := range d.engines {
		if eng.Name() != name {
			continue
		}
		slog.Debug("domain memory hit", "domain", domain, "engine", name)
		res, err := eng.Capture(ctx, req)
		if err == nil {
			return res, true
		}
		slog.Info("remembered engine failed, racing all engines",
			"domain", domain, "engine", name, "error", err)
		break
	}
	d.memory.Delete(domain)
	return nil, false
}

// sequence runs the engines selected by keep one after another and returns
// the first success.
func (d *Dispatcher) sequence(ctx context.Context, req *Request, keep func(Engine) bool) (*Result, error) {
	var failures []error
	for _, eng := range d.engines {
		if !keep(eng) {
			continue
		}
		res, err := eng.Capture(ctx, req)
		if err == nil {
			return res, nil
		}
		slog.Debug("engine failed", "engine", eng.Name(), "url", req.URL, "error", err)
		failures = append(failures, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, summarize(failures, req.URL)
}

type attempt struct {
	res *Result
	err error
}

// race starts every engine on its escalation delay and returns the first
// success; the losers are canceled.
func (d *Dispatcher) race(ctx context.Context, req *Request, domain string) (*Result, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	attempts := make(chan attempt, len(d.engines))
	for i, eng := range d.engines {
		go func(e Engine, delay time.Duration) {
			if !startAfter(raceCtx, delay) {
				attempts <- attempt{err: raceCtx.Err()}
				return
			}
			slog.Debug("engine starting", "engine", e.Name(), "url", req.URL)
			res, err := e.Capture(raceCtx, req)
			if err != nil {
				slog.Debug("engine failed", "engine", e.Name(), "url", req.URL, "error", err)
			}
			attempts <- attempt{res: res, err: err}
		}(eng, d.delays[i])
	}

	var failures []error
	for range d.engines {
		a := <-attempts
		if a.err != nil {
			if !errors.Is(a.err, context.Canceled) || ctx.Err() != nil {
				failures = append(failures, a.err)
			}
			continue
		}
		cancel()
		slog.Info("engine won race", "engine", a.res.EngineName, "url", req.URL, "found", len(a.res.Found))
		d.memory.Set(domain, a.res.EngineName)
		return a.res, nil
	}
	return nil, summarize(failures, req.URL)
}

// startAfter waits delay unless ctx ends first. It reports whether the
// engine should still run.
func startAfter(ctx context.Context, delay time.Duration) bool {
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
		}
	}
	return ctx.Err() == nil
}

// summarize folds engine failures into one error. A real failure is more
// useful to the caller than "nothing found", so ErrNoMedia is returned only
// when every engine ran cleanly and found nothing.
func summarize(failures []error, rawURL string) error {
	if len(failures) == 0 {
		return fmt.Errorf("dispatcher: no engine available for %s", rawURL)
	}
	for i := len(failures) - 1; i >= 0; i-- {
		if !errors.Is(failures[i], ErrNoMedia) {
			return failures[i]
		}
	}
	return ErrNoMedia
}

func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
