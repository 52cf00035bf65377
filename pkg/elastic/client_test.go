package elastic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newESServer fakes an Elasticsearch node. The product header satisfies
// the client's compatibility check.
func newESServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		handler(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(t *testing.T, ts *httptest.Server) *Client {
	t.Helper()
	c, err := NewClientForURL(ts.URL)
	if err != nil {
		t.Fatalf("NewClientForURL: %v", err)
	}
	return c
}

func TestGetReturnsDocument(t *testing.T) {
	ts := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/products/_doc/p1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"_id":     "p1",
			"found":   true,
			"_source": map[string]any{"version": 3, "name": "widget"},
		})
	})
	c := newTestClient(t, ts)

	doc, err := c.Get(context.Background(), "products", "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc == nil {
		t.Fatal("Get returned nil document")
	}
	if doc["version"].(float64) != 3 || doc["name"] != "widget" {
		t.Errorf("doc = %v", doc)
	}
}

func TestGetAbsentOn404(t *testing.T) {
	ts := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"found": false})
	})
	c := newTestClient(t, ts)

	doc, err := c.Get(context.Background(), "products", "missing")
	if err != nil {
		t.Fatalf("Get on 404 must not error, got %v", err)
	}
	if doc != nil {
		t.Errorf("doc = %v, want nil", doc)
	}
}

func TestGetServerErrorIsError(t *testing.T) {
	ts := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := newTestClient(t, ts)

	if _, err := c.Get(context.Background(), "products", "p1"); err == nil {
		t.Fatal("Get on 500 must error")
	}
}

func TestPutSendsDocument(t *testing.T) {
	var received map[string]any
	ts := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/_doc/p1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"result": "created"})
	})
	c := newTestClient(t, ts)

	err := c.Put(context.Background(), "products", "p1", map[string]any{"version": 1})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if received["version"].(float64) != 1 {
		t.Errorf("received = %v", received)
	}
}

func TestPutErrorStatus(t *testing.T) {
	ts := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "unavailable", "reason": "shard down"},
		})
	})
	c := newTestClient(t, ts)

	if err := c.Put(context.Background(), "products", "p1", map[string]any{}); err == nil {
		t.Fatal("Put on 503 must error")
	}
}

func TestDeleteMissingIsOK(t *testing.T) {
	ts := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"result": "not_found"})
	})
	c := newTestClient(t, ts)

	if err := c.Delete(context.Background(), "products", "gone"); err != nil {
		t.Fatalf("Delete of missing doc must not error, got %v", err)
	}
}
