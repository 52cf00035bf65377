package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/atlas-stream/event-pipeline/pkg/config"
	"github.com/segmentio/kafka-go"
)

// DLQMessage is the record published to the dead-letter topic. The
// original event travels unmodified as raw bytes.
type DLQMessage struct {
	OriginalEvent string `json:"original_event"`
	ErrorReason   string `json:"error_reason"`
	Timestamp     int64  `json:"timestamp"`
}

// DLQProducer writes unprocessable records to the dead-letter topic.
type DLQProducer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewDLQProducer creates a producer for the configured DLQ topic.
func NewDLQProducer(cfg config.KafkaConfig) *DLQProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.DLQTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    1,
		BatchTimeout: 100 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return &DLQProducer{
		writer: w,
		logger: slog.Default().With("component", "dlq-producer", "topic", cfg.DLQTopic),
	}
}

// Publish routes the raw original event to the DLQ with the failure
// reason and the current epoch-seconds timestamp.
func (p *DLQProducer) Publish(ctx context.Context, originalEvent []byte, errorReason string) error {
	value, err := json.Marshal(DLQMessage{
		OriginalEvent: string(originalEvent),
		ErrorReason:   errorReason,
		Timestamp:     time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshaling dlq message: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Value: value}); err != nil {
		p.logger.Error("failed to publish to dlq",
			"reason", errorReason,
			"error", err,
		)
		return fmt.Errorf("publishing to dlq: %w", err)
	}
	p.logger.Warn("event routed to dlq", "reason", errorReason)
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *DLQProducer) Close() error {
	return p.writer.Close()
}
