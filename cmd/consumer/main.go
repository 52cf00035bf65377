// Command consumer starts the product event indexing consumer.
//
// It pulls product events from the configured Kafka topic, applies each
// one to Elasticsearch with version-based idempotency, keeps the Redis
// product cache coherent via failure-driven invalidation, and routes
// poison messages to the dead-letter topic. Offsets are committed
// manually, only after an event reaches a terminal state.
//
// Usage:
//
//	go run ./cmd/consumer [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/atlas-stream/event-pipeline/internal/indexer/cache"
	"github.com/atlas-stream/event-pipeline/internal/indexer/processor"
	"github.com/atlas-stream/event-pipeline/internal/indexer/store"
	"github.com/atlas-stream/event-pipeline/pkg/config"
	"github.com/atlas-stream/event-pipeline/pkg/elastic"
	"github.com/atlas-stream/event-pipeline/pkg/health"
	"github.com/atlas-stream/event-pipeline/pkg/kafka"
	"github.com/atlas-stream/event-pipeline/pkg/logger"
	"github.com/atlas-stream/event-pipeline/pkg/metrics"
	"github.com/atlas-stream/event-pipeline/pkg/redis"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexing consumer",
		"topic", cfg.Kafka.Topic,
		"group", cfg.Kafka.GroupID,
	)

	es, err := elastic.NewClient(cfg.Elasticsearch)
	if err != nil {
		slog.Error("failed to create elasticsearch client", "error", err)
		os.Exit(1)
	}
	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	slog.Info("connected to redis", "addr", cfg.Redis.Addr())

	dlq := kafka.NewDLQProducer(cfg.Kafka)
	defer dlq.Close()

	var rec metrics.Recorder = metrics.Nop{}
	if cfg.Metrics.Enabled {
		rec = metrics.NewRecorder("consumer")
		checker := health.NewChecker()
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := rdb.Ping(ctx); err != nil {
				return health.Down(err)
			}
			return health.Up()
		})
		checker.Register("elasticsearch", func(ctx context.Context) health.ComponentHealth {
			if err := es.Ping(ctx); err != nil {
				return health.Down(err)
			}
			return health.Up()
		})
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, checker)
		defer shutdownMetrics(context.Background())
	}

	proc := processor.New(store.New(es), cache.New(rdb), dlq, rec)
	consumer := kafka.NewConsumer(cfg.Kafka, proc.Handle)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Start(ctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("consumer error", "error", err)
		os.Exit(1)
	}
	slog.Info("indexing consumer stopped")
}
