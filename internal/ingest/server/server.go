// Package server terminates HTTP for the ingestion pipeline. It enforces
// backpressure through the bounded accept queue, replays pending batches
// before the listener binds, and drains the pipeline on shutdown.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/atlas-stream/event-pipeline/internal/ingest"
	"github.com/atlas-stream/event-pipeline/internal/ingest/appendlog"
	"github.com/atlas-stream/event-pipeline/internal/ingest/batcher"
	"github.com/atlas-stream/event-pipeline/internal/ingest/queue"
	"github.com/atlas-stream/event-pipeline/internal/ingest/sink"
	"github.com/atlas-stream/event-pipeline/pkg/config"
	apperrors "github.com/atlas-stream/event-pipeline/pkg/errors"
	"github.com/atlas-stream/event-pipeline/pkg/metrics"
	"github.com/atlas-stream/event-pipeline/pkg/middleware"
)

// maxBodyBytes bounds a single event payload.
const maxBodyBytes = 1 << 20

// Server wires the accept queue, batcher, append log, and sink behind the
// ingest HTTP surface.
type Server struct {
	log     *appendlog.AppendLog
	sink    sink.Sink
	batcher *batcher.Batcher
	queue   *queue.Queue
	rec     metrics.Recorder

	httpServer   *http.Server
	consumerDone chan struct{}
	quit         chan struct{}
	logger       *slog.Logger
}

// New builds a Server from configuration and its collaborators.
func New(cfg *config.Config, log *appendlog.AppendLog, snk sink.Sink, rec metrics.Recorder, httpMetrics *metrics.HTTP) *Server {
	if rec == nil {
		rec = metrics.Nop{}
	}
	s := &Server{
		log:          log,
		sink:         snk,
		batcher:      batcher.New(cfg.Ingest.BatchSize, cfg.Ingest.BatchWait(), log, snk, rec),
		queue:        queue.New(cfg.Ingest.QueueSize),
		rec:          rec,
		consumerDone: make(chan struct{}),
		quit:         make(chan struct{}),
		logger:       slog.Default().With("component", "ingest-server"),
	}

	var handler http.Handler = s.routes()
	handler = middleware.Timeout(cfg.Server.WriteTimeout)(handler)
	if httpMetrics != nil {
		handler = middleware.Metrics(httpMetrics)(handler)
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Handler exposes the HTTP surface for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /events", s.handlePostEvent)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// StartWorkers replays pending batches, then starts the batcher and the
// queue consumer. It must run before the listener binds.
func (s *Server) StartWorkers(ctx context.Context) {
	s.ReplayPending(ctx)
	s.batcher.Start()
	go s.consumeQueue()
}

// Start runs the workers and binds the listener. It blocks until
// Shutdown is called or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.StartWorkers(ctx)

	s.logger.Info("ingest server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ingest server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, drains the accept queue into the
// batcher, and stops the batcher, which flushes one final batch.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	close(s.quit)
	<-s.consumerDone
	s.batcher.Stop()

	s.logger.Info("ingest server stopped")
	return err
}

// ReplayPending delivers every on-disk batch in chronological order. A
// batch that fails to read or send keeps its file and replay moves on to
// the next one.
func (s *Server) ReplayPending(ctx context.Context) {
	files, err := s.log.ListPending()
	if err != nil {
		s.logger.Error("replay: failed to list pending batches", "error", err)
		return
	}
	if len(files) == 0 {
		s.logger.Info("replay: no pending batches")
		return
	}
	s.logger.Info("replay: pending batches found", "count", len(files))

	for _, filename := range files {
		events, err := s.log.ReadBatch(filename)
		if err != nil {
			s.logger.Error("replay: failed to read batch", "file", filename, "error", err)
			continue
		}
		s.logger.Info("replaying batch", "file", filename, "events", len(events))
		if !s.sink.Send(ctx, events) {
			s.logger.Warn("replay: delivery failed, keeping file", "file", filename)
			continue
		}
		if err := s.log.DeleteBatch(filename); err != nil {
			s.logger.Error("replay: failed to delete batch", "file", filename, "error", err)
			continue
		}
		s.rec.Inc("batches_replayed")
		s.logger.Info("replayed and deleted", "file", filename)
	}
	s.logger.Info("replay complete")
}

// consumeQueue moves events from the accept queue into the batcher. On
// quit it drains whatever is left before returning.
func (s *Server) consumeQueue() {
	defer close(s.consumerDone)
	for {
		select {
		case e := <-s.queue.C():
			s.batcher.AddEvent(e)
		case <-s.quit:
			for {
				e, ok := s.queue.TryPop()
				if !ok {
					return
				}
				s.batcher.AddEvent(e)
			}
		}
	}
}

// handlePostEvent accepts one event. The server assigns the timestamp; a
// full queue is answered with 429 and nothing else blocks.
func (s *Server) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.rec.Inc("events_invalid")
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	event, err := ingest.DecodeEvent(body)
	if err != nil {
		s.rec.Inc("events_invalid")
		s.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": "invalid JSON"})
		return
	}
	event.Timestamp = time.Now().UnixMilli()

	if !s.queue.TryPush(event) {
		s.rec.Inc("events_rejected")
		s.writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "queue full"})
		return
	}
	s.rec.Inc("events_accepted")
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "ingest-demo",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}
