package engine

import (
	"context"
	"fmt"
)

// CaptureFunc is the browser capture callback. It is injected from main to
// keep engine/ free of the capture/ import.
type CaptureFunc func(ctx context.Context, req *Request) (*Result, error)

// RodEngine is a browser-based engine that delegates to the capture
// package via a callback. forceStealth distinguishes "rod" from
// "rod-stealth".
type RodEngine struct {
	captureFunc  CaptureFunc
	forceStealth bool
	name         string
}

// NewRodEngine creates a RodEngine.
func NewRodEngine(fn CaptureFunc, forceStealth bool) *RodEngine {
	name := "rod"
	if forceStealth {
		name = "rod-stealth"
	}
	return &RodEngine{captureFunc: fn, forceStealth: forceStealth, name: name}
}

func (e *RodEngine) Name() string { return e.name }

func (e *RodEngine) Capture(ctx context.Context, req *Request) (*Result, error) {
	if e.captureFunc == nil {
		return nil, fmt.Errorf("%s: capture func not configured", e.name)
	}
	if req.ProxyURL != "" {
		return nil, fmt.Errorf("%s: %w", e.name, ErrProxyUnsupported)
	}

	// Clone the request so we don't mutate the caller's copy.
	r := *req
	if e.forceStealth {
		r.Stealth = true
	}

	result, err := e.captureFunc(ctx, &r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}
	result.EngineName = e.name
	return result, nil
}
