// Package batcher owns the write-then-send-then-delete sequence of the
// ingestion pipeline. Events accumulate in memory until the batch reaches
// its size limit or the wait interval elapses; every flush is made durable
// in the append log before delivery is attempted, and the log file is
// removed only after the sink acknowledges the batch.
package batcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/atlas-stream/event-pipeline/internal/ingest"
	"github.com/atlas-stream/event-pipeline/internal/ingest/appendlog"
	"github.com/atlas-stream/event-pipeline/internal/ingest/sink"
	"github.com/atlas-stream/event-pipeline/pkg/metrics"
)

// Batcher accumulates events and flushes them on size or time.
type Batcher struct {
	maxBatchSize int
	maxWait      time.Duration

	log  *appendlog.AppendLog
	sink sink.Sink
	rec  metrics.Recorder

	mu     sync.Mutex
	buffer []ingest.Event

	kick chan struct{}
	stop chan struct{}
	done chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	logger    *slog.Logger
}

// New creates a Batcher flushing at maxBatchSize events or after maxWait,
// whichever comes first.
func New(maxBatchSize int, maxWait time.Duration, log *appendlog.AppendLog, snk sink.Sink, rec metrics.Recorder) *Batcher {
	if maxBatchSize <= 0 {
		maxBatchSize = 100
	}
	if maxWait <= 0 {
		maxWait = time.Second
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Batcher{
		maxBatchSize: maxBatchSize,
		maxWait:      maxWait,
		log:          log,
		sink:         snk,
		rec:          rec,
		buffer:       make([]ingest.Event, 0, maxBatchSize),
		kick:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		logger:       slog.Default().With("component", "batcher"),
	}
}

// AddEvent appends an event to the pending batch and wakes the worker when
// the high-water mark is reached.
func (b *Batcher) AddEvent(e ingest.Event) {
	b.mu.Lock()
	b.buffer = append(b.buffer, e)
	full := len(b.buffer) >= b.maxBatchSize
	b.mu.Unlock()

	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

// Start launches the worker loop.
func (b *Batcher) Start() {
	b.startOnce.Do(func() {
		go b.worker()
		b.logger.Info("batcher started",
			"max_batch_size", b.maxBatchSize,
			"max_wait", b.maxWait,
		)
	})
}

// Stop terminates the worker, flushing any pending batch to disk and
// attempting one delivery before returning.
func (b *Batcher) Stop() {
	b.stopOnce.Do(func() {
		close(b.stop)
	})
	<-b.done
}

// PendingLen returns the number of buffered, not-yet-flushed events.
func (b *Batcher) PendingLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// worker is the single owner of the on-disk batch lifecycle.
func (b *Batcher) worker() {
	defer close(b.done)
	timer := time.NewTimer(b.maxWait)
	defer timer.Stop()

	for {
		select {
		case <-b.kick:
			b.flush()
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(b.maxWait)
		case <-timer.C:
			b.flush()
			timer.Reset(b.maxWait)
		case <-b.stop:
			b.flush()
			b.logger.Info("batcher stopped")
			return
		}
	}
}

// flush moves the pending batch out of the shared buffer, writes it to
// the append log, attempts delivery, and deletes the file on success. A
// failed write drops the batch, so it is logged loudly; a failed send
// leaves the file for replay.
func (b *Batcher) flush() {
	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.buffer
	b.buffer = make([]ingest.Event, 0, b.maxBatchSize)
	b.mu.Unlock()

	filename, err := b.log.WriteBatch(batch)
	if err != nil {
		b.logger.Error("DROPPING BATCH: append log write failed, events are lost",
			"events", len(batch),
			"error", err,
		)
		b.rec.Inc("batches_lost")
		return
	}

	if b.sink.Send(context.Background(), batch) {
		if err := b.log.DeleteBatch(filename); err != nil {
			b.logger.Error("failed to delete delivered batch", "file", filename, "error", err)
		}
		b.rec.Inc("batches_flushed")
		b.logger.Debug("batch delivered", "file", filename, "events", len(batch))
		return
	}

	b.rec.Inc("batches_failed")
	b.logger.Warn("batch delivery failed, keeping file for replay",
		"file", filename,
		"events", len(batch),
	)
}
