// Package processor is the core of the indexing consumer: the per-event
// state machine that applies one product event to the index and the
// cache, idempotently with respect to replays. Offsets are committed only
// after an event is applied, skipped, or routed to the dead-letter
// stream, so every outcome is at-least-once with idempotent application.
package processor

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/atlas-stream/event-pipeline/internal/indexer"
	"github.com/atlas-stream/event-pipeline/pkg/elastic"
	"github.com/atlas-stream/event-pipeline/pkg/metrics"
	kafkago "github.com/segmentio/kafka-go"
)

// ProductIndex is the index name product documents live under.
const ProductIndex = "products"

// IndexStore is the slice of the index the processor mutates.
type IndexStore interface {
	Get(ctx context.Context, index, id string) (elastic.Document, error)
	Upsert(ctx context.Context, index, id string, doc map[string]any, maxRetries int) bool
	Delete(ctx context.Context, index, id string) bool
}

// CacheStore is the slice of the cache the processor mutates.
type CacheStore interface {
	Set(ctx context.Context, key, value string) bool
	Del(ctx context.Context, key string) bool
}

// DLQ routes unprocessable records to the dead-letter stream.
type DLQ interface {
	Publish(ctx context.Context, originalEvent []byte, errorReason string) error
}

// Processor applies product events. It is single-threaded per partition:
// the stream consumer invokes Handle synchronously.
type Processor struct {
	index      IndexStore
	cache      CacheStore
	dlq        DLQ
	rec        metrics.Recorder
	maxRetries int
	logger     *slog.Logger
}

// New creates a Processor with the default upsert retry budget.
func New(index IndexStore, cache CacheStore, dlq DLQ, rec metrics.Recorder) *Processor {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Processor{
		index:      index,
		cache:      cache,
		dlq:        dlq,
		rec:        rec,
		maxRetries: 3,
		logger:     slog.Default().With("component", "event-processor"),
	}
}

// Handle is the stream consumer callback. It always reports success to
// the consumer: failed events are routed to the DLQ and their offsets
// committed, so poison messages are never retried.
func (p *Processor) Handle(ctx context.Context, msg kafkago.Message) error {
	event, err := indexer.ParseProductEvent(msg.Value)
	if err != nil {
		p.logger.Error("failed to parse event", "offset", msg.Offset, "error", err)
		p.routeToDLQ(ctx, msg.Value, "parse error: "+err.Error())
		p.rec.Inc("events_parse_error")
		return nil
	}

	if p.Process(ctx, event) {
		p.rec.Inc("events_processed")
		return nil
	}

	p.routeToDLQ(ctx, msg.Value, "processing failed after retries")
	p.rec.Inc("events_failed")
	return nil
}

// Process runs the per-event pipeline: fetch, idempotency decision,
// index mutation, cache mutation. It reports whether the event reached a
// successful terminal state (applied or skipped).
func (p *Processor) Process(ctx context.Context, event indexer.ProductEvent) bool {
	current, err := p.index.Get(ctx, ProductIndex, event.ProductID)
	if err != nil {
		p.logger.Error("failed to fetch current document",
			"product_id", event.ProductID,
			"event_id", event.EventID,
			"error", err,
		)
		return false
	}

	if !shouldApply(event, current) {
		p.logger.Info("skipped event, index already newer",
			"product_id", event.ProductID,
			"event_id", event.EventID,
			"version", event.Version,
		)
		p.rec.Inc("events_skipped")
		return true
	}

	if !p.mutateIndex(ctx, event) {
		return false
	}
	p.mutateCache(ctx, event)

	p.logger.Info("event applied",
		"product_id", event.ProductID,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"version", event.Version,
	)
	return true
}

// shouldApply decides whether the event is newer than the stored
// document. An empty document always applies; otherwise the event must be
// newer than the stored version and newer than the stored updated_at
// (compared as strings), for whichever of the two the document carries.
func shouldApply(event indexer.ProductEvent, current elastic.Document) bool {
	if len(current) == 0 {
		return true
	}
	if v, ok := current["version"].(float64); ok {
		if float64(event.Version) <= v {
			return false
		}
	}
	if ua, ok := current["updated_at"].(string); ok && ua != "" {
		if event.UpdatedAt <= ua {
			return false
		}
	}
	return true
}

// mutateIndex deletes or upserts the product document. Upserts carry the
// event payload merged with the identity and ordering fields.
func (p *Processor) mutateIndex(ctx context.Context, event indexer.ProductEvent) bool {
	if event.EventType == indexer.EventTypeDelete {
		return p.index.Delete(ctx, ProductIndex, event.ProductID)
	}

	doc := make(map[string]any)
	if err := json.Unmarshal(event.Data, &doc); err != nil {
		p.logger.Error("event data is not an object",
			"product_id", event.ProductID,
			"event_id", event.EventID,
			"error", err,
		)
		return false
	}
	doc["product_id"] = event.ProductID
	doc["version"] = event.Version
	doc["updated_at"] = event.UpdatedAt

	return p.index.Upsert(ctx, ProductIndex, event.ProductID, doc, p.maxRetries)
}

// mutateCache applies failure-driven invalidation: deletes drop the key,
// and a failed set also drops the key so readers refetch from the index
// instead of seeing a stale body.
func (p *Processor) mutateCache(ctx context.Context, event indexer.ProductEvent) {
	key := event.CacheKey()
	if event.EventType == indexer.EventTypeDelete {
		p.cache.Del(ctx, key)
		return
	}
	if !p.cache.Set(ctx, key, string(event.Data)) {
		p.cache.Del(ctx, key)
	}
}

func (p *Processor) routeToDLQ(ctx context.Context, original []byte, reason string) {
	if p.dlq == nil {
		return
	}
	if err := p.dlq.Publish(ctx, original, reason); err != nil {
		p.logger.Error("failed to route event to dlq", "reason", reason, "error", err)
	}
}
