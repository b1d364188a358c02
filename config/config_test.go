package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Store.MinURLLength != 10 {
		t.Errorf("Store.MinURLLength = %d, want 10", cfg.Store.MinURLLength)
	}
	if cfg.Classify.Profile != "broad" {
		t.Errorf("Classify.Profile = %q, want broad", cfg.Classify.Profile)
	}
	if !cfg.Capture.ClickPlayer {
		t.Error("Capture.ClickPlayer should default to true")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediatap.yaml")
	yaml := `
server:
  port: 9090
capture:
  observe_window: 2s
  blocked_resource_types: [Image]
store:
  backend: sqlite
  path: /tmp/x.db
classify:
  profile: strict
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MEDIATAP_PORT", "7070")
	t.Setenv("MEDIATAP_ESCALATION_DELAYS", "0s, 1s ,bogus")
	t.Setenv("MEDIATAP_CLICK_PLAYER", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("env should override file: port = %d", cfg.Server.Port)
	}
	if cfg.Capture.ObserveWindow != 2*time.Second {
		t.Errorf("ObserveWindow = %v, want 2s", cfg.Capture.ObserveWindow)
	}
	if len(cfg.Capture.BlockedResourceTypes) != 1 || cfg.Capture.BlockedResourceTypes[0] != "Image" {
		t.Errorf("BlockedResourceTypes = %v", cfg.Capture.BlockedResourceTypes)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Path != "/tmp/x.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Classify.Profile != "strict" {
		t.Errorf("Classify.Profile = %q", cfg.Classify.Profile)
	}
	if got := cfg.Engine.EscalationDelays; len(got) != 2 || got[1] != time.Second {
		t.Errorf("EscalationDelays = %v, want [0s 1s]", got)
	}
	if cfg.Capture.ClickPlayer {
		t.Error("MEDIATAP_CLICK_PLAYER=false should disable the player click")
	}
	// Untouched values keep their defaults.
	if cfg.Capture.RescanInterval != 3*time.Second {
		t.Errorf("RescanInterval = %v, want default 3s", cfg.Capture.RescanInterval)
	}
	if cfg.Capture.PlayWait != 15*time.Second {
		t.Errorf("PlayWait = %v, want default 15s", cfg.Capture.PlayWait)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load should fail for a missing config file")
	}
}

func TestEnvHelpers_IgnoreGarbage(t *testing.T) {
	t.Setenv("MEDIATAP_TEST_INT", "abc")
	t.Setenv("MEDIATAP_TEST_BOOL", "maybe")
	if got := envIntOr("MEDIATAP_TEST_INT", 3); got != 3 {
		t.Errorf("envIntOr = %d, want fallback 3", got)
	}
	if got := envBoolOr("MEDIATAP_TEST_BOOL", true); !got {
		t.Error("envBoolOr should fall back on unparsable values")
	}
}
