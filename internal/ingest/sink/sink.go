// Package sink abstracts the downstream endpoint the ingestion pipeline
// delivers batches to. Delivery is single-attempt and reports success or
// failure only; retries happen at the replay layer.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/atlas-stream/event-pipeline/internal/ingest"
	"github.com/atlas-stream/event-pipeline/pkg/resilience"
)

// Sink sends a batch downstream. It does not retry, does not mutate the
// batch, and holds no state about previous deliveries.
type Sink interface {
	Send(ctx context.Context, events []ingest.Event) bool
}

// HTTPSink posts batches as a JSON array to a downstream endpoint.
// Success is any 2xx response inside the timeout.
type HTTPSink struct {
	url     string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPSink creates a sink for the given endpoint. The timeout bounds
// the whole call, connection included.
func NewHTTPSink(url string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSink{
		url:     url,
		timeout: timeout,
		client:  &http.Client{},
		logger:  slog.Default().With("component", "http-sink", "url", url),
	}
}

// Send posts the batch. Any transport error, timeout, or non-2xx status
// is a failed delivery.
func (s *HTTPSink) Send(ctx context.Context, events []ingest.Event) bool {
	err := resilience.WithTimeout(ctx, s.timeout, "sink-send", func(ctx context.Context) error {
		return s.post(ctx, events)
	})
	if err != nil {
		s.logger.Warn("sink delivery failed", "events", len(events), "error", err)
		return false
	}
	s.logger.Debug("batch delivered", "events", len(events))
	return true
}

func (s *HTTPSink) post(ctx context.Context, events []ingest.Event) error {
	body, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshaling batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building sink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sink returned status %d", resp.StatusCode)
	}
	return nil
}

// FlakySink is a sink with an injectable failure rate, shared by tests
// and the demo wiring when no downstream endpoint is configured.
type FlakySink struct {
	mu          sync.Mutex
	failureRate float64
	rng         *rand.Rand
	latency     time.Duration
	logger      *slog.Logger
}

// NewFlakySink creates a sink that fails a fraction of sends in [0, 1].
func NewFlakySink(failureRate float64) *FlakySink {
	return &FlakySink{
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:      slog.Default().With("component", "flaky-sink"),
	}
}

// SetFailureRate changes the failure rate for subsequent sends.
func (s *FlakySink) SetFailureRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureRate = rate
}

// SetLatency adds a fixed delay to every send, simulating network time.
func (s *FlakySink) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Send succeeds unless the dice say otherwise.
func (s *FlakySink) Send(ctx context.Context, events []ingest.Event) bool {
	s.mu.Lock()
	rate := s.failureRate
	latency := s.latency
	roll := s.rng.Float64()
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return false
		}
	}
	if rate > 0 && roll < rate {
		s.logger.Warn("simulated sink failure", "events", len(events))
		return false
	}
	s.logger.Debug("batch accepted", "events", len(events))
	return true
}
