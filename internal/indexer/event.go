// Package indexer defines the product event model consumed from the
// stream by the indexing pipeline.
package indexer

import (
	"encoding/json"
	"fmt"
)

// Event types carried by product events.
const (
	EventTypeCreate = "create"
	EventTypeUpdate = "update"
	EventTypeDelete = "delete"
)

// ProductEvent is one change to a product. Version is monotonic per
// product; UpdatedAt is an ISO-8601 UTC timestamp, so string comparison
// orders it.
type ProductEvent struct {
	ProductID string          `json:"product_id"`
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Version   int64           `json:"version"`
	UpdatedAt string          `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// ParseProductEvent decodes a stream record. Records that are not valid
// JSON or lack the identifying fields are rejected; the caller routes
// them to the dead-letter stream.
func ParseProductEvent(raw []byte) (ProductEvent, error) {
	var e ProductEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return ProductEvent{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if e.ProductID == "" {
		return ProductEvent{}, fmt.Errorf("missing product_id")
	}
	switch e.EventType {
	case EventTypeCreate, EventTypeUpdate, EventTypeDelete:
	default:
		return ProductEvent{}, fmt.Errorf("unknown event_type %q", e.EventType)
	}
	if len(e.Data) == 0 {
		e.Data = json.RawMessage(`{}`)
	}
	return e, nil
}

// CacheKey returns the cache key for a product.
func (e ProductEvent) CacheKey() string {
	return "product:" + e.ProductID
}
