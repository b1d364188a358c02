// Package classify decides whether a raw string or a content type looks like
// a media resource. Matching is done on the case-folded raw string; URLs are
// never parsed or normalised, so unrelated resources that share a keyword
// are reported as media too.
package classify

import (
	"regexp"
	"strings"
)

// broadExtRe matches a media file extension followed by end of string, a
// query string or a fragment.
var broadExtRe = regexp.MustCompile(`\.(m3u8|mpd|mp4|m4v|webm|mkv|ts|hls|avi|mov|flv|wmv|3gp|mp3|aac|ogg|wav)(\?|#|$)`)

// linkExtRe is the narrower video-only set used for anchor hrefs.
var linkExtRe = regexp.MustCompile(`\.(mp4|m3u8|webm|mkv|avi|mov|flv)(\?|#|$)`)

var broadKeywords = []string{
	"playlist", "manifest", "segment", "chunk",
	"video", "stream", "media", "cdn", "blob",
	"/v/", "/media/", "/stream/",
}

// strictPatterns mirror the heuristics of the download-oriented variant.
var strictPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.mp4`),
	regexp.MustCompile(`\.mkv`),
	regexp.MustCompile(`\.webm`),
	regexp.MustCompile(`\.m3u8`),
	regexp.MustCompile(`\.ts$`),
	regexp.MustCompile(`\.avi`),
	regexp.MustCompile(`\.mov`),
	regexp.MustCompile(`\.flv`),
	regexp.MustCompile(`video`),
	regexp.MustCompile(`stream`),
	regexp.MustCompile(`mixdrop.*\.(php|co)`),
	regexp.MustCompile(`get_video`),
	regexp.MustCompile(`player.*\.(php|asp)`),
}

// Profile selects a heuristic set.
type Profile string

const (
	// Broad accepts anything with a media extension or a media keyword.
	Broad Profile = "broad"

	// Strict only accepts video extensions, a few keywords and known
	// player endpoints.
	Strict Profile = "strict"
)

// ParseProfile maps a config string to a Profile, defaulting to Broad.
func ParseProfile(s string) Profile {
	if strings.EqualFold(strings.TrimSpace(s), string(Strict)) {
		return Strict
	}
	return Broad
}

// LooksLikeMedia reports whether s matches the profile's URL heuristics.
func (p Profile) LooksLikeMedia(s string) bool {
	if p == Strict {
		return matchesStrict(s)
	}
	return LooksLikeMedia(s)
}

// LooksLikeMedia applies the broad heuristics: a media extension or any
// media keyword.
func LooksLikeMedia(s string) bool {
	if s == "" {
		return false
	}
	return HasMediaExtension(s) || HasMediaKeyword(s)
}

// HasMediaExtension reports whether s ends in a media extension, optionally
// followed by "?" or "#" and anything after it.
func HasMediaExtension(s string) bool {
	return broadExtRe.MatchString(strings.ToLower(s))
}

// HasVideoLinkExtension is the anchor-href variant of HasMediaExtension.
func HasVideoLinkExtension(s string) bool {
	return linkExtRe.MatchString(strings.ToLower(s))
}

// HasMediaKeyword reports whether s contains any media keyword.
func HasMediaKeyword(s string) bool {
	low := strings.ToLower(s)
	for _, kw := range broadKeywords {
		if strings.Contains(low, kw) {
			return true
		}
	}
	return false
}

// IsMediaContentType classifies a Content-Type header value.
func IsMediaContentType(ct string) bool {
	v := strings.ToLower(strings.TrimSpace(ct))
	if v == "" {
		return false
	}
	return strings.HasPrefix(v, "video/") ||
		strings.HasPrefix(v, "audio/") ||
		strings.Contains(v, "mpegurl") ||
		strings.Contains(v, "dash") ||
		strings.Contains(v, "mp4") ||
		strings.Contains(v, "stream")
}

// IsMediaMIME is the stricter MIME check used for downloads.
func IsMediaMIME(mime string) bool {
	v := strings.ToLower(strings.TrimSpace(mime))
	return strings.HasPrefix(v, "video/") || strings.HasPrefix(v, "audio/")
}

func matchesStrict(s string) bool {
	if s == "" {
		return false
	}
	low := strings.ToLower(s)
	for _, re := range strictPatterns {
		if re.MatchString(low) {
			return true
		}
	}
	return false
}
