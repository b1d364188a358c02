// Package scanner finds media URLs in a page's HTML: media elements and
// their data attributes, video links, iframes and player variables in
// inline scripts.
package scanner

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/use-agent/mediatap/classify"
	"github.com/use-agent/mediatap/collector"
)

// DataAttributes are the lazy-load attributes players use to carry a
// media URL on video, audio and source elements.
var DataAttributes = []string{
	"data-src", "data-url", "data-video-src", "data-video-url",
	"data-file", "data-stream", "data-source",
}

var mediaSelector = cascadia.MustCompile("video, audio, source")

// scriptPatterns capture media URLs assigned in player bootstrap code.
var scriptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`vsr\s*=\s*["']([^"']+)["']`),
	regexp.MustCompile(`MDCore\.wurl\s*=\s*["']([^"']+)["']`),
	regexp.MustCompile(`file:\s*["']([^"']+\.m3u8[^"']*)["']`),
	regexp.MustCompile(`src:\s*["']([^"']+\.m3u8[^"']*)["']`),
	regexp.MustCompile(`https?://[^\s"']+\.m3u8[^\s"']*`),
}

// Hit is one URL found in the document.
type Hit struct {
	URL    string
	Source string // "dom-src", "dom-data-url", "dom-link", "dom-iframe", "script"

	// Direct hits come from places that only ever hold media (a video
	// element, a player variable) and skip the URL heuristics.
	Direct bool
}

// Candidate converts h for the collector.
func (h Hit) Candidate(tabID string) collector.Candidate {
	return collector.Candidate{URL: h.URL, Source: h.Source, TabID: tabID, Direct: h.Direct}
}

// Page is the result of scanning one document.
type Page struct {
	Hits     []Hit
	Iframes  []string // absolute iframe URLs, in document order
	Title    string
	SiteName string
}

// Candidates converts every hit for the collector.
func (p *Page) Candidates(tabID string) []collector.Candidate {
	out := make([]collector.Candidate, len(p.Hits))
	for i, h := range p.Hits {
		out[i] = h.Candidate(tabID)
	}
	return out
}

// Scan parses rawHTML and collects media hits. Relative URLs are resolved
// against pageURL; anything that is not http(s) after resolution is skipped.
func Scan(rawHTML, pageURL string) (*Page, error) {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("scanner: parse html: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}
	c := &collect{base: base, seen: make(map[string]struct{})}

	for _, n := range cascadia.QueryAll(root, mediaSelector) {
		if v := attr(n, "src"); v != "" {
			c.add(v, "dom-src", true)
		}
		for _, name := range DataAttributes {
			if v := attr(n, name); v != "" {
				c.add(v, "dom-"+name, true)
			}
		}
	}

	doc := goquery.NewDocumentFromNode(root)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if abs, ok := c.resolve(href); ok && classify.HasVideoLinkExtension(abs) {
			c.add(abs, "dom-link", true)
		}
	})

	doc.Find("iframe[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if abs, ok := c.resolve(src); ok {
			c.iframes = append(c.iframes, abs)
			c.add(abs, "dom-iframe", false)
		}
	})

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		for _, u := range ScanScript(s.Text()) {
			c.add(u, "script", true)
		}
	})

	page := &Page{Hits: c.hits, Iframes: c.iframes}
	page.Title, page.SiteName = Metadata(doc, pageURL)
	return page, nil
}

// ScanScript returns the media URLs assigned in a script body, in pattern
// order, without duplicates.
func ScanScript(js string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, re := range scriptPatterns {
		for _, m := range re.FindAllStringSubmatch(js, -1) {
			u := m[0]
			if len(m) > 1 {
				u = m[1]
			}
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}

type collect struct {
	base    *url.URL
	seen    map[string]struct{}
	hits    []Hit
	iframes []string
}

func (c *collect) resolve(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	var u *url.URL
	var err error
	if c.base != nil {
		u, err = c.base.Parse(raw)
	} else {
		u, err = url.Parse(raw)
	}
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return u.String(), true
}

func (c *collect) add(raw, source string, direct bool) {
	abs, ok := c.resolve(raw)
	if !ok {
		return
	}
	if _, dup := c.seen[abs]; dup {
		return
	}
	c.seen[abs] = struct{}{}
	c.hits = append(c.hits, Hit{URL: abs, Source: source, Direct: direct})
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
