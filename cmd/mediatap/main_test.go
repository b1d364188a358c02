package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/use-agent/mediatap/classify"
	"github.com/use-agent/mediatap/collector"
	"github.com/use-agent/mediatap/config"
	"github.com/use-agent/mediatap/engine"
	"github.com/use-agent/mediatap/store"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWriteConfig_MasksSecrets(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Auth.APIKeys = []string{"super-secret-key"}
	cfg.Broadcast.WebhookSecret = "hmac-secret"

	var buf bytes.Buffer
	if err := writeConfig(&buf, cfg); err != nil {
		t.Fatalf("writeConfig: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "super-secret-key") || strings.Contains(out, "hmac-secret") {
		t.Errorf("secrets leaked:\n%s", out)
	}
	if cfg.Auth.APIKeys[0] != "super-secret-key" {
		t.Error("masking must not modify the loaded config")
	}

	var back map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	for _, section := range []string{"server", "capture", "classify", "store", "broadcast", "engine"} {
		if _, ok := back[section]; !ok {
			t.Errorf("section %q missing", section)
		}
	}
}

func TestBuildEngines(t *testing.T) {
	col := collector.New(store.NewMemory(0), classify.Broad)
	fakeBrowser := func(_ context.Context, _ *engine.Request) (*engine.Result, error) { return &engine.Result{}, nil }
	delays := []time.Duration{0, 2 * time.Second, 5 * time.Second}

	tests := []struct {
		name      string
		multi     bool
		browser   bool
		want      []string
		wantDelay []time.Duration
	}{
		{"static only", true, false, []string{"http"}, []time.Duration{0}},
		{"race", true, true, []string{"http", "rod", "rod-stealth"}, delays},
		{"browser only", false, true, []string{"rod", "rod-stealth"}, []time.Duration{0, 3 * time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.EngineConfig{EnableMultiEngine: tt.multi, EscalationDelays: delays, HTTPTimeout: time.Second}
			var fn engine.CaptureFunc
			if tt.browser {
				fn = fakeBrowser
			}
			engines, gotDelays := buildEngines(cfg, "", col, fn)

			var names []string
			for _, e := range engines {
				names = append(names, e.Name())
			}
			if strings.Join(names, ",") != strings.Join(tt.want, ",") {
				t.Errorf("engines = %v, want %v", names, tt.want)
			}
			if len(gotDelays) != len(tt.wantDelay) {
				t.Fatalf("delays = %v, want %v", gotDelays, tt.wantDelay)
			}
			for i := range gotDelays {
				if gotDelays[i] != tt.wantDelay[i] {
					t.Errorf("delays = %v, want %v", gotDelays, tt.wantDelay)
				}
			}
		})
	}
}

func TestBuildEngines_DefaultProxyCarriesStaticFetch(t *testing.T) {
	var seen atomic.Value
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.URL.String())
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<video src="https://cdn.example.com/v/clip.mp4"></video>`)
	}))
	defer proxy.Close()

	col := collector.New(store.NewMemory(0), classify.Broad)
	cfg := config.EngineConfig{EnableMultiEngine: true, HTTPTimeout: 5 * time.Second}
	engines, _ := buildEngines(cfg, proxy.URL, col, nil)

	res, err := engines[0].Capture(context.Background(), &engine.Request{URL: "http://media.invalid/watch"})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got, _ := seen.Load().(string); got != "http://media.invalid/watch" {
		t.Errorf("proxy saw %q, want the target URL", got)
	}
	if len(res.Found) != 1 {
		t.Errorf("Found = %+v", res.Found)
	}
}

func TestNewApp_WithoutBrowser(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Broadcast.LogInterval = 0

	a, err := newApp(cfg, false)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	if a.browser != nil || a.poolStats() != nil {
		t.Error("no browser should be launched")
	}
	sub := a.hub.Subscribe()
	defer sub.Close()

	a.col.Observe(collector.Candidate{URL: "https://cdn.example.com/a.m3u8", Source: "request"})
	select {
	case ev := <-sub.Events():
		if ev.Record == nil || ev.Record.URL != "https://cdn.example.com/a.m3u8" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("collector is not wired to the hub")
	}
}

func TestNewApp_WebhookSeesFirstEvent(t *testing.T) {
	bodies := make(chan string, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		buf.ReadFrom(r.Body)
		bodies <- buf.String()
	}))
	defer hook.Close()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Broadcast.LogInterval = 0
	cfg.Broadcast.Webhooks = []string{hook.URL}

	a, err := newApp(cfg, false)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	// Published before the webhook goroutine has had a chance to run.
	a.col.Observe(collector.Candidate{URL: "https://cdn.example.com/first.m3u8", Source: "request"})

	select {
	case body := <-bodies:
		if !strings.Contains(body, "first.m3u8") {
			t.Errorf("webhook body = %s", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event published right after startup never reached the webhook")
	}
}

func TestRootCmd_Wiring(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"serve": false, "capture": false, "config": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "show"})
	if err := root.Execute(); err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out.String(), "profile: broad") {
		t.Errorf("config show output:\n%s", out.String())
	}

	root = newRootCmd()
	root.SetArgs([]string{"capture", "https://example.com", "--engine", "warp"})
	if err := root.Execute(); err == nil {
		t.Error("invalid engine mode should fail")
	}
}
