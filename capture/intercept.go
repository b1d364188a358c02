package capture

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/mediatap/collector"
)

// Candidate sources reported by the network interceptor.
const (
	SourceRequest = "request"
	SourceHeaders = "headers"
)

// configToProto maps config strings to CDP resource types. Media is
// deliberately absent: media requests are what we observe, so they are
// never failed.
var configToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Script":     proto.NetworkResourceTypeScript,
	"Ping":       proto.NetworkResourceTypePing,
	"Manifest":   proto.NetworkResourceTypeManifest,
}

// adDomains is a set of ad and tracking domains failed when BlockAds is on.
var adDomains = map[string]struct{}{
	"doubleclick.net":        {},
	"googlesyndication.com":  {},
	"googleadservices.com":   {},
	"google-analytics.com":   {},
	"googletagmanager.com":   {},
	"googletagservices.com":  {},
	"adnxs.com":              {},
	"adsrvr.org":             {},
	"amazon-adsystem.com":    {},
	"criteo.com":             {},
	"criteo.net":             {},
	"outbrain.com":           {},
	"taboola.com":            {},
	"moatads.com":            {},
	"pubmatic.com":           {},
	"rubiconproject.com":     {},
	"scorecardresearch.com":  {},
	"quantserve.com":         {},
	"hotjar.com":             {},
	"openx.net":              {},
	"casalemedia.com":        {},
	"serving-sys.com":        {},
	"popads.net":             {},
	"popcash.net":            {},
	"propellerads.com":       {},
	"adsterra.com":           {},
	"exoclick.com":           {},
	"juicyads.com":           {},
	"trafficjunky.net":       {},
	"onclickads.net":         {},
	"adcash.com":             {},
	"hilltopads.net":         {},
	"consensu.org":           {},
}

// isAdDomain checks if a hostname (or any parent domain) is in the ad blocklist.
func isAdDomain(host string) bool {
	host = strings.ToLower(host)
	for {
		if _, ok := adDomains[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
}

// policy decides which paused requests are failed instead of continued.
type policy struct {
	blocked  map[proto.NetworkResourceType]struct{}
	blockAds bool
}

func newPolicy(blockedTypes []string, blockAds bool) policy {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := configToProto[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	return policy{blocked: blocked, blockAds: blockAds}
}

// decision is what to do with one Fetch.requestPaused event.
type decision struct {
	candidate *collector.Candidate
	response  bool // paused at the response stage
	block     bool
}

// isResponseStage reports whether e was paused after response headers
// arrived.
func isResponseStage(e *proto.FetchRequestPaused) bool {
	return e.ResponseStatusCode != nil || e.ResponseErrorReason != ""
}

// headerValue returns the first header named name, case-insensitively.
func headerValue(headers []*proto.FetchHeaderEntry, name string) string {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// decide turns a paused request into a candidate and a verdict.
func (p policy) decide(e *proto.FetchRequestPaused, tabID string) decision {
	if e.Request == nil {
		return decision{response: isResponseStage(e)}
	}
	reqURL := e.Request.URL + e.Request.URLFragment

	if isResponseStage(e) {
		d := decision{response: true}
		if ct := headerValue(e.ResponseHeaders, "Content-Type"); ct != "" {
			d.candidate = &collector.Candidate{URL: reqURL, Source: SourceHeaders, ContentType: ct, TabID: tabID}
		}
		return d
	}

	d := decision{candidate: &collector.Candidate{URL: reqURL, Source: SourceRequest, TabID: tabID}}
	if e.ResourceType == proto.NetworkResourceTypeMedia {
		return d
	}
	if _, ok := p.blocked[e.ResourceType]; ok {
		d.block = true
		return d
	}
	if p.blockAds {
		if u, err := url.Parse(reqURL); err == nil && isAdDomain(u.Hostname()) {
			d.block = true
		}
	}
	return d
}

// interceptPatterns pause every request twice: before it is sent and once
// response headers are in.
func interceptPatterns() *proto.FetchEnable {
	return &proto.FetchEnable{
		Patterns: []*proto.FetchRequestPattern{
			{URLPattern: "*", RequestStage: proto.FetchRequestStageRequest},
			{URLPattern: "*", RequestStage: proto.FetchRequestStageResponse},
		},
	}
}

// startInterceptor pauses all page traffic through the Fetch domain,
// reports each request to observe and then continues or fails it.
//
// The Network domain is left alone: on Chromium 145+ its events conflict
// with Fetch interception and requests end up ERR_BLOCKED_BY_CLIENT.
//
// page must carry the session context; the interceptor stops when that
// context ends. ctl is used to continue requests and should not, so that
// in-flight requests are released during teardown.
func startInterceptor(page, ctl *rod.Page, tabID string, pol policy, observe func(collector.Candidate)) error {
	wait := page.EachEvent(func(e *proto.FetchRequestPaused) {
		go handlePaused(ctl, e, pol.decide(e, tabID), observe)
	})
	// EachEvent enables Fetch with its default pattern; override it.
	if err := interceptPatterns().Call(ctl); err != nil {
		return err
	}
	go wait()
	return nil
}

func handlePaused(ctl *rod.Page, e *proto.FetchRequestPaused, d decision, observe func(collector.Candidate)) {
	if d.candidate != nil {
		observe(*d.candidate)
	}

	var err error
	switch {
	case d.response:
		err = proto.FetchContinueResponse{RequestID: e.RequestID}.Call(ctl)
	case d.block:
		err = proto.FetchFailRequest{RequestID: e.RequestID, ErrorReason: proto.NetworkErrorReasonBlockedByClient}.Call(ctl)
	default:
		err = proto.FetchContinueRequest{RequestID: e.RequestID}.Call(ctl)
	}
	if err != nil {
		slog.Debug("intercept: resume paused request failed", "request_id", e.RequestID, "error", err)
	}
}
