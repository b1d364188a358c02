package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/mediatap/store"
)

func TestDeliver_SignsBody(t *testing.T) {
	const secret = "s3cret"
	var gotSig, wantSig string
	var got Event

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		wantSig = Sign(secret, body)
		_ = json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	ev := CaptureEvent(store.Record{URL: "https://example.com/v.mp4", Source: "headers"}, false, 3)
	if err := Deliver(context.Background(), srv.Client(), srv.URL, secret, ev); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if gotSig == "" || gotSig != wantSig {
		t.Errorf("signature = %q, want %q", gotSig, wantSig)
	}
	if got.Record == nil || got.Record.URL != "https://example.com/v.mp4" || got.Total != 3 {
		t.Errorf("decoded event = %+v", got)
	}
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := Deliver(context.Background(), srv.Client(), srv.URL, "", ClearEvent(0)); err == nil {
		t.Error("Deliver should fail on a 5xx response")
	}
}

func TestWebhook_RetriesAndForwards(t *testing.T) {
	var calls atomic.Int32
	delivered := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		delivered <- struct{}{}
	}))
	defer srv.Close()

	hub := NewHub(4)
	wh := NewWebhook(srv.URL, "")
	wh.Delays = []time.Duration{0, time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wh.Run(ctx, hub.Subscribe())
	hub.Publish(ClearEvent(2))

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never delivered after retry")
	}
	if calls.Load() != 2 {
		t.Errorf("endpoint called %d times, want 2", calls.Load())
	}
}
