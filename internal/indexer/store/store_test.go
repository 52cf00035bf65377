package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/atlas-stream/event-pipeline/pkg/elastic"
)

func newESServer(t *testing.T, handler http.HandlerFunc) *Store {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		handler(w, r)
	}))
	t.Cleanup(ts.Close)
	client, err := elastic.NewClientForURL(ts.URL)
	if err != nil {
		t.Fatalf("NewClientForURL: %v", err)
	}
	return New(client)
}

func TestUpsertRetriesThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	s := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"type": "boom"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"result": "created"})
	})

	ok := s.Upsert(context.Background(), "products", "p1", map[string]any{"version": 1}, 3)
	if !ok {
		t.Fatal("Upsert failed despite a successful third attempt")
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestUpsertExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	s := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	ok := s.Upsert(context.Background(), "products", "p1", map[string]any{"version": 1}, 3)
	if ok {
		t.Fatal("Upsert succeeded despite permanent failure")
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestDeleteSingleAttempt(t *testing.T) {
	var attempts atomic.Int32
	s := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	if s.Delete(context.Background(), "products", "p1") {
		t.Fatal("Delete succeeded despite server error")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 (delete does not retry)", got)
	}
}

func TestGetAbsent(t *testing.T) {
	s := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	doc, err := s.Get(context.Background(), "products", "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc != nil {
		t.Errorf("doc = %v, want nil", doc)
	}
}
