// Package ingest defines the event model shared by the ingestion
// pipeline's accept queue, batcher, and append log.
package ingest

import (
	"encoding/json"
	"strings"

	apperrors "github.com/atlas-stream/event-pipeline/pkg/errors"
)

// Event is the unit of work flowing through the ingestion pipeline. The
// server assigns Timestamp (milliseconds since epoch) on receipt; after
// that the event is immutable.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// emptyObject is the payload stored when a request omits "data".
var emptyObject = json.RawMessage(`{}`)

// DecodeEvent parses a request body into an Event. Malformed JSON and
// missing id or type yield ErrInvalidInput. A missing data field defaults
// to an empty object.
func DecodeEvent(body []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return Event{}, apperrors.Newf(apperrors.ErrInvalidInput, 400, "invalid JSON: %v", err)
	}
	if strings.TrimSpace(e.ID) == "" {
		return Event{}, apperrors.New(apperrors.ErrInvalidInput, 400, "id is required")
	}
	if strings.TrimSpace(e.Type) == "" {
		return Event{}, apperrors.New(apperrors.ErrInvalidInput, 400, "type is required")
	}
	if len(e.Data) == 0 {
		e.Data = emptyObject
	}
	return e, nil
}
