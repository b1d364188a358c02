package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/use-agent/mediatap/config"
)

func TestAdmit(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"http url", "https://example.com/a.mp4", false},
		{"data url", "data:video/mp4;base64,AAAAIGZ0eXBpc29t", true},
		{"blob url", "blob:https://example.com/5f1c-4f7e-9d2a", true},
		{"upper-case blob", "BLOB:https://example.com/5f1c-4f7e", true},
		{"about page", "about:blank#something-long", true},
		{"too short", "a.mp4", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Admit(tt.url, DefaultMinLength)
			if tt.wantErr {
				if !errors.Is(err, ErrRejected) {
					t.Errorf("Admit(%q) = %v, want ErrRejected", tt.url, err)
				}
				return
			}
			if err != nil {
				t.Errorf("Admit(%q) unexpected error: %v", tt.url, err)
			}
		})
	}
}

func TestMemory_RecordDeduplicates(t *testing.T) {
	m := NewMemory(0)
	const u = "https://cdn.example.com/v/clip.m3u8"

	if _, added, err := m.Record(u, "request", "tab-1"); err != nil || !added {
		t.Fatalf("first Record = (%v, %v), want a new URL", added, err)
	}
	rec, added, err := m.Record(u, "headers", "tab-2")
	if err != nil || added {
		t.Errorf("second Record = (%v, %v), want a no-op", added, err)
	}
	if rec.Source != "request" {
		t.Errorf("duplicate Record returned %+v, want the first-seen record", rec)
	}
	if got := m.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}

	r := m.Records()[0]
	if r.Source != "request" || r.TabID != "tab-1" {
		t.Errorf("first-seen metadata overwritten: %+v", r)
	}
}

func TestMemory_RejectsSchemes(t *testing.T) {
	m := NewMemory(0)
	for _, u := range []string{
		"data:video/mp4;base64,AAAA",
		"blob:https://example.com/1234-5678",
	} {
		if _, added, err := m.Record(u, "dom-src", ""); added || !errors.Is(err, ErrRejected) {
			t.Errorf("Record(%q) = (%v, %v), want ErrRejected", u, added, err)
		}
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0", m.Count())
	}
}

func TestMemory_ListPreservesFirstSeenOrder(t *testing.T) {
	m := NewMemory(0)
	urls := []string{
		"https://example.com/3.mp4",
		"https://example.com/1.mp4",
		"https://example.com/2.mp4",
	}
	for _, u := range urls {
		m.Record(u, "test", "")
	}
	m.Record(urls[0], "test", "")

	got := m.List()
	if strings.Join(got, ",") != strings.Join(urls, ",") {
		t.Errorf("List() = %v, want %v", got, urls)
	}
}

func TestMemory_ClearAndExport(t *testing.T) {
	m := NewMemory(0)
	m.Record("https://example.com/a.mp4", "request", "t1")
	m.Record("https://example.com/b.webm", "headers", "t1")

	snap := m.Export()
	if snap.Count != 2 || len(snap.URLs) != 2 || len(snap.Metadata) != 2 {
		t.Fatalf("Export() = %+v, want 2 entries", snap)
	}
	if snap.Timestamp == "" {
		t.Error("Export() timestamp should be set")
	}

	if n := m.Clear(); n != 2 {
		t.Errorf("Clear() = %d, want 2", n)
	}
	if m.Count() != 0 || len(m.List()) != 0 {
		t.Error("store should be empty after Clear")
	}
	if n := m.Clear(); n != 0 {
		t.Errorf("second Clear() = %d, want 0", n)
	}
}

func TestSQLite_ReloadsCaptures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captures.db")

	s, err := OpenSQLite(path, 0)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	s.Record("https://example.com/first.mp4", "request", "tab-a")
	s.Record("https://example.com/second.m3u8", "headers", "tab-a")
	s.Record("https://example.com/first.mp4", "dom-src", "tab-b")
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenSQLite(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if got := reopened.Count(); got != 2 {
		t.Fatalf("Count() after reopen = %d, want 2", got)
	}
	urls := reopened.List()
	if urls[0] != "https://example.com/first.mp4" {
		t.Errorf("order not preserved: %v", urls)
	}
	r := reopened.Records()[0]
	if r.Source != "request" || r.TabID != "tab-a" {
		t.Errorf("metadata not preserved: %+v", r)
	}
}

func TestSQLite_ClearPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captures.db")

	s, err := OpenSQLite(path, 0)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	s.Record("https://example.com/a.mp4", "request", "")
	if n := s.Clear(); n != 1 {
		t.Errorf("Clear() = %d, want 1", n)
	}
	s.Close()

	reopened, err := OpenSQLite(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Count() != 0 {
		t.Errorf("Count() after clear+reopen = %d, want 0", reopened.Count())
	}
}

func TestSQLite_ConcurrentRecordAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captures.db")
	s, err := OpenSQLite(path, 0)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Record(fmt.Sprintf("https://example.com/%d.mp4", i), "request", "")
		}()
		go func() {
			defer wg.Done()
			s.Clear()
		}()
	}
	wg.Wait()
	want := s.List()
	s.Close()

	reopened, err := OpenSQLite(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if got := reopened.List(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("database diverged from memory: reopened %v, memory had %v", got, want)
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(config.StoreConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("Open(memory): %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("Open(memory) returned %T", s)
	}

	if _, err := Open(config.StoreConfig{Backend: "redis"}); err == nil {
		t.Error("Open should reject unknown backends")
	}
}
