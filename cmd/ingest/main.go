// Command ingest starts the event ingestion service.
//
// The service accepts events via POST /events, stages them through a
// bounded accept queue and a size-or-time batcher, persists every batch
// to an append-only on-disk log before delivery, and replays pending
// batches on startup. It provides a health endpoint at GET /health.
//
// Usage:
//
//	go run ./cmd/ingest [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/atlas-stream/event-pipeline/internal/ingest/appendlog"
	"github.com/atlas-stream/event-pipeline/internal/ingest/server"
	"github.com/atlas-stream/event-pipeline/internal/ingest/sink"
	"github.com/atlas-stream/event-pipeline/pkg/config"
	"github.com/atlas-stream/event-pipeline/pkg/health"
	"github.com/atlas-stream/event-pipeline/pkg/logger"
	"github.com/atlas-stream/event-pipeline/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// main loads configuration, opens the append log, replays pending
// batches, and serves the ingest HTTP surface. Graceful shutdown is
// triggered by SIGINT/SIGTERM. Exit code 1 means a fatal startup error.
func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingest service", "port", cfg.Server.Port)

	log, err := appendlog.New(cfg.Ingest.LogDir)
	if err != nil {
		slog.Error("failed to open append log", "dir", cfg.Ingest.LogDir, "error", err)
		os.Exit(1)
	}

	var snk sink.Sink
	if cfg.Ingest.SinkURL != "" {
		snk = sink.NewHTTPSink(cfg.Ingest.SinkURL, cfg.Ingest.SinkTimeout)
		slog.Info("using http sink", "url", cfg.Ingest.SinkURL)
	} else {
		snk = sink.NewFlakySink(0.0)
		slog.Warn("no sink_url configured, using simulated sink")
	}

	var rec metrics.Recorder = metrics.Nop{}
	var httpMetrics *metrics.HTTP
	if cfg.Metrics.Enabled {
		rec = metrics.NewRecorder("ingest")
		httpMetrics = metrics.NewHTTP()
		checker := health.NewChecker()
		checker.Register("append_log", func(ctx context.Context) health.ComponentHealth {
			if _, err := log.ListPending(); err != nil {
				return health.Down(err)
			}
			return health.Up()
		})
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, checker)
		defer shutdownMetrics(context.Background())
	}

	srv := server.New(cfg, log, snk, rec, httpMetrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("ingest service error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingest service stopped")
}
