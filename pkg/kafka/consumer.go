// Package kafka provides the Kafka clients used by the indexing consumer:
// a manual-commit stream consumer backed by segmentio/kafka-go and a
// dead-letter producer.
package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/atlas-stream/event-pipeline/pkg/config"
	"github.com/segmentio/kafka-go"
)

// fetchTimeout bounds a single poll for the next record.
const fetchTimeout = 1 * time.Second

// maxErrorSleep caps the backoff applied after repeated fetch errors.
const maxErrorSleep = 5 * time.Second

// Handler is a callback invoked for each fetched Kafka message. Returning
// nil commits the message's offset; returning an error leaves it
// uncommitted.
type Handler func(ctx context.Context, msg kafka.Message) error

// Consumer reads messages from a Kafka topic with manual offset commits.
// Offsets are committed only after the handler reports success.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler Handler
}

// NewConsumer creates a Consumer for the configured topic and handler.
func NewConsumer(cfg config.KafkaConfig, handler Handler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "stream-consumer", "topic", cfg.Topic),
		handler: handler,
	}
}

// Start enters the consume loop, fetching and processing one record at a
// time until ctx is cancelled. The handler runs synchronously, so events
// within a partition are processed in order.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	errStreak := 0
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return c.reader.Close()
		default:
		}

		msg, err := c.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.reader.Close()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				errStreak = 0
				continue
			}
			errStreak++
			sleep := time.Duration(errStreak) * 100 * time.Millisecond
			if sleep > maxErrorSleep {
				sleep = maxErrorSleep
			}
			c.logger.Error("failed to fetch message", "error", err, "sleep", sleep)
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
			}
			continue
		}
		errStreak = 0

		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)

		if err := c.handler(ctx, msg); err != nil {
			c.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit offset",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// fetch polls for the next record, bounded by fetchTimeout.
func (c *Consumer) fetch(ctx context.Context) (kafka.Message, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	return c.reader.FetchMessage(fetchCtx)
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
