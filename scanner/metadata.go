package scanner

import (
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// Metadata returns the page title and site name. Readability is tried
// first; the <title> element and og:site_name fill whatever it leaves empty.
func Metadata(doc *goquery.Document, pageURL string) (title, siteName string) {
	if parsed, err := nurl.Parse(pageURL); err == nil {
		if h, err := doc.Html(); err == nil {
			article, err := readability.FromReader(strings.NewReader(h), parsed)
			if err != nil {
				slog.Debug("readability: metadata extraction failed", "url", pageURL, "error", err)
			} else {
				title, siteName = strings.TrimSpace(article.Title), strings.TrimSpace(article.SiteName)
			}
		}
	}

	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if siteName == "" {
		if v, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok {
			siteName = strings.TrimSpace(v)
		}
	}
	return title, siteName
}
