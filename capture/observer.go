package capture

import (
	_ "embed"
	"strings"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"

	"github.com/use-agent/mediatap/collector"
)

// bindingName is the one capability the page observer is given: a
// function on window that hands found URLs back to us.
const bindingName = "__mediatapObserve"

// rescanJS re-runs the observer's DOM and resource-timing scans.
const rescanJS = `() => typeof window.__mediatapRescan === 'function' ? window.__mediatapRescan() : 0`

//go:embed observer.js
var observerSource string

// observerJS is the page observer with the binding name filled in.
var observerJS = strings.Replace(observerSource, "__BINDING__", bindingName, 1)

// decodeReport converts a binding payload (an array of {url, source,
// direct}) into candidates.
func decodeReport(payload gson.JSON, tabID string) []collector.Candidate {
	items := payload.Arr()
	if len(items) == 0 {
		if _, ok := payload.Gets("url"); ok {
			items = []gson.JSON{payload}
		}
	}

	out := make([]collector.Candidate, 0, len(items))
	for _, it := range items {
		u := it.Get("url").Str()
		if u == "" {
			continue
		}
		src := it.Get("source").Str()
		if src == "" {
			src = "page"
		}
		out = append(out, collector.Candidate{
			URL:    u,
			Source: src,
			TabID:  tabID,
			Direct: it.Get("direct").Bool(),
		})
	}
	return out
}

// installObserver exposes the binding and registers the observer for every
// new document on page. The returned stop undoes both.
func installObserver(page *rod.Page, tabID string, observe func(collector.Candidate)) (stop func(), err error) {
	stopExpose, err := page.Expose(bindingName, func(payload gson.JSON) (interface{}, error) {
		for _, c := range decodeReport(payload, tabID) {
			observe(c)
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	remove, err := page.EvalOnNewDocument(observerJS)
	if err != nil {
		_ = stopExpose()
		return nil, err
	}

	return func() {
		_ = remove()
		_ = stopExpose()
	}, nil
}
