// Package store implements the index side of the per-event pipeline:
// reads, upserts, and deletes against Elasticsearch with the retry policy
// the consumer relies on.
package store

import (
	"context"
	"log/slog"

	"github.com/atlas-stream/event-pipeline/pkg/elastic"
	"github.com/atlas-stream/event-pipeline/pkg/resilience"
)

// DefaultMaxRetries is the upsert attempt budget when the caller passes
// zero.
const DefaultMaxRetries = 3

// Store performs document operations against Elasticsearch.
type Store struct {
	client *elastic.Client
	logger *slog.Logger
}

// New creates a Store on top of the document client.
func New(client *elastic.Client) *Store {
	return &Store{
		client: client,
		logger: slog.Default().With("component", "index-store"),
	}
}

// Get fetches the current document, returning a nil document when it does
// not exist. Transport and server errors are returned as errors.
func (s *Store) Get(ctx context.Context, index, id string) (elastic.Document, error) {
	return s.client.Get(ctx, index, id)
}

// Upsert writes the document, retrying with exponential backoff (100ms,
// 200ms, ... before attempts 2..n). It reports whether the write
// eventually succeeded.
func (s *Store) Upsert(ctx context.Context, index, id string, doc map[string]any, maxRetries int) bool {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	cfg := resilience.DefaultRetry()
	cfg.MaxAttempts = maxRetries
	err := resilience.Retry(ctx, "es-upsert", cfg, func() error {
		return s.client.Put(ctx, index, id, doc)
	})
	if err != nil {
		s.logger.Error("upsert failed after retries",
			"index", index,
			"id", id,
			"attempts", maxRetries,
			"error", err,
		)
		return false
	}
	return true
}

// Delete removes the document in a single attempt. Failures are logged
// and reported as false.
func (s *Store) Delete(ctx context.Context, index, id string) bool {
	if err := s.client.Delete(ctx, index, id); err != nil {
		s.logger.Error("delete failed", "index", index, "id", id, "error", err)
		return false
	}
	return true
}
