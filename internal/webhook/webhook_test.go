// Copyright 2025 James Ross
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ghostradio/podcastd/internal/config"
	"go.uber.org/zap"
)

func TestNotifyDisabledIsNoop(t *testing.T) {
	var called int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&called, 1)
	}))
	defer srv.Close()

	n := New(config.Webhook{Enabled: false, URLs: []string{srv.URL}}, zap.NewNop())
	n.Notify(context.Background(), EventJobSuccess, map[string]interface{}{"job_id": "abc"})

	if atomic.LoadInt32(&called) != 0 {
		t.Fatal("expected no request when webhooks disabled")
	}
}

func TestNotifySendsPayload(t *testing.T) {
	received := make(chan payload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Error(err)
		}
		received <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(config.Webhook{Enabled: true, URLs: []string{srv.URL}, Backoff: config.Backoff{Base: time.Millisecond, Max: 10 * time.Millisecond}}, zap.NewNop())
	n.Notify(context.Background(), EventJobSuccess, map[string]interface{}{"job_id": "abc"})

	select {
	case p := <-received:
		if p.Event != EventJobSuccess {
			t.Fatalf("expected event %q, got %q", EventJobSuccess, p.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook request not received in time")
	}
}

func TestNotifyRetriesOnFailureThenGivesUp(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New(config.Webhook{Enabled: true, URLs: []string{srv.URL}, Backoff: config.Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond}}, zap.NewNop())
	n.Notify(context.Background(), EventJobFailed, map[string]interface{}{"job_id": "abc"})

	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
}
