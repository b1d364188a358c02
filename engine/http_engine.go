package engine

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	tls "github.com/refraction-networking/utls"

	"github.com/use-agent/mediatap/classify"
	"github.com/use-agent/mediatap/collector"
	"github.com/use-agent/mediatap/scanner"
)

const (
	// httpTab is both the engine name and the tab ID recorded for URLs found
	// without a browser.
	httpTab = "http"

	// maxIframes bounds how many iframe documents are fetched per page.
	maxIframes = 3

	maxBody = 10 << 20

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"
)

// HTTPEngine is the static tier: it downloads the page over plain HTTP,
// scans the markup (and up to maxIframes embedded documents) for media and
// never runs JavaScript. It is the fastest option and finds media on pages
// that reference it in their HTML.
type HTTPEngine struct {
	client       *http.Client
	col          *collector.Collector
	robots       *RobotsChecker
	timeout      time.Duration
	defaultProxy string
	roots        *x509.CertPool // nil: system roots

	proxied sync.Map // proxy URL -> *http.Client
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewHTTPEngine creates an HTTPEngine with a Chrome-like TLS fingerprint.
// timeout caps each capture; respectRobots makes it refuse URLs that
// robots.txt disallows. defaultProxy, if set, carries every request that
// does not name its own proxy.
func NewHTTPEngine(col *collector.Collector, timeout time.Duration, respectRobots bool, defaultProxy string) *HTTPEngine {
	e := &HTTPEngine{
		col:          col,
		timeout:      timeout,
		defaultProxy: defaultProxy,
	}
	e.client = newClient(&http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := baseDialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return e.handshake(ctx, conn, addr)
		},
		ForceAttemptHTTP2: false,
	})
	if respectRobots {
		robotsClient := e.client
		if defaultProxy != "" {
			if c, err := e.clientFor(defaultProxy); err == nil {
				robotsClient = c
			}
		}
		e.robots = NewRobotsChecker(robotsClient, userAgent)
	}
	return e
}

func newClient(rt http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: rt,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// handshake runs the Chrome ClientHello over conn, which may be a proxy
// tunnel, and closes conn on failure.
func (e *HTTPEngine) handshake(ctx context.Context, conn net.Conn, addr string) (net.Conn, error) {
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host, RootCAs: e.roots}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// clientFor returns the client for a request's proxy, falling back to the
// default proxy and then to a direct connection.
func (e *HTTPEngine) clientFor(proxyURL string) (*http.Client, error) {
	if proxyURL == "" {
		proxyURL = e.defaultProxy
	}
	if proxyURL == "" {
		return e.client, nil
	}
	if c, ok := e.proxied.Load(proxyURL); ok {
		return c.(*http.Client), nil
	}
	tr, err := e.proxiedTransport(proxyURL)
	if err != nil {
		return nil, err
	}
	actual, _ := e.proxied.LoadOrStore(proxyURL, newClient(tr))
	return actual.(*http.Client), nil
}

func (e *HTTPEngine) Name() string { return httpTab }

// Capture fetches req.URL and feeds every media reference in it to the
// collector. It returns ErrNoMedia unless at least one direct media hit was
// accepted, so the dispatcher can escalate to a browser.
func (e *HTTPEngine) Capture(ctx context.Context, req *Request) (*Result, error) {
	timeout := req.Timeout
	if e.timeout > 0 && (timeout <= 0 || timeout > e.timeout) {
		timeout = e.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if e.robots != nil && !e.robots.Allowed(ctx, req.URL) {
		return nil, fmt.Errorf("http_engine: %s: %w", req.URL, ErrDisallowed)
	}

	client, err := e.clientFor(req.ProxyURL)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	doc, err := fetch(ctx, client, req.URL, req.Headers)
	if err != nil {
		return nil, err
	}

	tracker := NewTracker(e.col)
	result := &Result{
		StatusCode: doc.statusCode,
		FinalURL:   doc.finalURL,
		EngineName: e.Name(),
	}

	if doc.media {
		// The URL itself is a media resource.
		tracker.Observe(collector.Candidate{
			URL:         doc.finalURL,
			Source:      "headers",
			ContentType: doc.contentType,
			TabID:       httpTab,
		})
	} else {
		page, err := scanner.Scan(doc.body, doc.finalURL)
		if err != nil {
			return nil, fmt.Errorf("http_engine: scan: %w", err)
		}
		tracker.ObserveAll(page.Candidates(httpTab))
		result.Title, result.SiteName = page.Title, page.SiteName

		for i, src := range page.Iframes {
			if i >= maxIframes || ctx.Err() != nil {
				break
			}
			e.scanFrame(ctx, client, src, req.Headers, tracker)
		}
	}
	result.NavigationMs = time.Since(start).Milliseconds()

	// An iframe or link that merely looks like media (a player page on a
	// "cdn" host) is not enough: the browser has to load it to find the
	// stream, so the race must go on.
	if tracker.DirectLen() == 0 {
		return nil, fmt.Errorf("http_engine: %s: %w", req.URL, ErrNoMedia)
	}
	result.Found = tracker.Found()
	return result, nil
}

// scanFrame fetches one embedded document and scans it. Failures are only
// logged; the outer page already loaded.
func (e *HTTPEngine) scanFrame(ctx context.Context, client *http.Client, src string, headers map[string]string, tracker *Tracker) {
	doc, err := fetch(ctx, client, src, headers)
	if err != nil {
		slog.Debug("iframe fetch failed", "url", src, "error", err)
		return
	}
	if doc.media {
		tracker.Observe(collector.Candidate{
			URL:         doc.finalURL,
			Source:      "headers",
			ContentType: doc.contentType,
			TabID:       httpTab,
		})
		return
	}
	page, err := scanner.Scan(doc.body, doc.finalURL)
	if err != nil {
		return
	}
	tracker.ObserveAll(page.Candidates(httpTab))
}

// document is one fetched response.
type document struct {
	body        string
	contentType string
	statusCode  int
	finalURL    string
	media       bool // content type is a media type; body is not read
}

func fetch(ctx context.Context, client *http.Client, rawURL string, headers map[string]string) (*document, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("http_engine: build request: %w", err)
	}

	// Simulate browser-like headers.
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "identity")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http_engine: do request: %w", err)
	}
	defer resp.Body.Close()

	doc := &document{
		contentType: resp.Header.Get("Content-Type"),
		statusCode:  resp.StatusCode,
		finalURL:    resp.Request.URL.String(),
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http_engine: error status %d", resp.StatusCode)
	}
	if classify.IsMediaContentType(doc.contentType) {
		doc.media = true
		return doc, nil
	}
	if !isHTMLContentType(doc.contentType) {
		return nil, fmt.Errorf("http_engine: non-html response (content-type: %s)", doc.contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("http_engine: read body: %w", err)
	}
	doc.body = string(body)
	return doc, nil
}

// isHTMLContentType returns true if the content-type header looks like HTML.
func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}
