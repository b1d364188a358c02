package capture

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func paused(url string, rt proto.NetworkResourceType) *proto.FetchRequestPaused {
	return &proto.FetchRequestPaused{
		RequestID:    "req-1",
		Request:      &proto.NetworkRequest{URL: url},
		ResourceType: rt,
	}
}

func TestPolicyDecide_RequestStage(t *testing.T) {
	pol := newPolicy([]string{"Image", "Font", "Media"}, true)

	tests := []struct {
		name      string
		event     *proto.FetchRequestPaused
		wantBlock bool
	}{
		{"document continues", paused("https://example.com/watch", proto.NetworkResourceTypeDocument), false},
		{"image blocked", paused("https://example.com/a.png", proto.NetworkResourceTypeImage), true},
		{"media never blocked", paused("https://cdn.example.com/v.mp4", proto.NetworkResourceTypeMedia), false},
		{"ad domain blocked", paused("https://pagead2.googlesyndication.com/x.js", proto.NetworkResourceTypeScript), true},
		{"xhr continues", paused("https://cdn.example.com/master.m3u8", proto.NetworkResourceTypeXHR), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := pol.decide(tt.event, "tab-9")
			if d.block != tt.wantBlock {
				t.Errorf("block = %v, want %v", d.block, tt.wantBlock)
			}
			if d.response {
				t.Error("request-stage event reported as response stage")
			}
			if d.candidate == nil || d.candidate.URL != tt.event.Request.URL || d.candidate.Source != SourceRequest || d.candidate.TabID != "tab-9" {
				t.Errorf("candidate = %+v", d.candidate)
			}
		})
	}
}

func TestPolicyDecide_AdsAllowedWhenDisabled(t *testing.T) {
	pol := newPolicy(nil, false)
	d := pol.decide(paused("https://ads.doubleclick.net/preroll.mp4", proto.NetworkResourceTypeOther), "")
	if d.block {
		t.Error("ad request blocked with block_ads off")
	}
}

func TestPolicyDecide_ResponseStage(t *testing.T) {
	pol := newPolicy([]string{"Image"}, true)
	status := 200

	e := &proto.FetchRequestPaused{
		RequestID:          "req-2",
		Request:            &proto.NetworkRequest{URL: "https://example.com/play?id=7"},
		ResourceType:       proto.NetworkResourceTypeImage,
		ResponseStatusCode: &status,
		ResponseHeaders: []*proto.FetchHeaderEntry{
			{Name: "content-type", Value: "video/mp4"},
		},
	}
	d := pol.decide(e, "tab-1")
	if !d.response || d.block {
		t.Fatalf("decision = %+v, want response stage, not blocked", d)
	}
	if d.candidate == nil || d.candidate.Source != SourceHeaders || d.candidate.ContentType != "video/mp4" {
		t.Errorf("candidate = %+v", d.candidate)
	}

	e.ResponseHeaders = nil
	if d := pol.decide(e, "tab-1"); d.candidate != nil {
		t.Errorf("response without content-type produced %+v", d.candidate)
	}
}

func TestIsAdDomain(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"doubleclick.net", true},
		{"stats.g.DoubleClick.net", true},
		{"example.com", false},
		{"notdoubleclick.net", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isAdDomain(tt.host); got != tt.want {
			t.Errorf("isAdDomain(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestInterceptPatterns(t *testing.T) {
	p := interceptPatterns()
	if len(p.Patterns) != 2 ||
		p.Patterns[0].RequestStage != proto.FetchRequestStageRequest ||
		p.Patterns[1].RequestStage != proto.FetchRequestStageResponse {
		t.Errorf("patterns = %+v", p.Patterns)
	}
}
