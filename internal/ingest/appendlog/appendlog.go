// Package appendlog implements the durable staging store of the ingestion
// pipeline: one newline-delimited JSON file per batch, named so that
// lexicographic order equals creation order. Files are written to a
// temporary name and renamed into place, so every visible file is fully
// formed. The set of files on disk is exactly the set of batches not yet
// confirmed delivered.
package appendlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/atlas-stream/event-pipeline/internal/ingest"
	apperrors "github.com/atlas-stream/event-pipeline/pkg/errors"
)

// AppendLog stages batches of events in a directory of .jsonl files.
type AppendLog struct {
	dir     string
	mu      sync.Mutex
	counter int
	logger  *slog.Logger
}

// New creates the log directory if needed and verifies it is writable.
func New(dir string) (*AppendLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory %s: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("log directory %s is not writable: %w", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	l := &AppendLog{
		dir:    dir,
		logger: slog.Default().With("component", "append-log", "dir", dir),
	}
	l.logger.Info("append log initialized")
	return l, nil
}

// WriteBatch materializes the events as one JSON record per line and
// returns the batch filename. The write goes to a temporary name first
// and is fsynced before the rename, so a crash never leaves a partial
// file visible.
func (l *AppendLog) WriteBatch(events []ingest.Event) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	filename := fmt.Sprintf("batch_%s_%010d.jsonl",
		time.Now().Format("20060102_150405"), l.counter)
	l.counter++

	finalPath := filepath.Join(l.dir, filename)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating batch file: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return "", fmt.Errorf("encoding event %s: %w", e.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("flushing batch file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("syncing batch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing batch file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming batch file: %w", err)
	}

	l.logger.Debug("batch written", "file", filename, "events", len(events))
	return filename, nil
}

// DeleteBatch removes a batch file. Deleting a missing file is not an
// error.
func (l *AppendLog) DeleteBatch(filename string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := os.Remove(filepath.Join(l.dir, filename))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting batch %s: %w", filename, err)
	}
	if err == nil {
		l.logger.Debug("batch deleted", "file", filename)
	}
	return nil
}

// ListPending returns all batch filenames in the log directory, sorted
// lexicographically, which is chronological order for this naming scheme.
func (l *AppendLog) ListPending() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("listing log directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// ReadBatch parses a batch file line by line. Any line that is not a
// valid JSON event with id and type set makes the whole batch corrupt.
// Blank lines are skipped.
func (l *AppendLog) ReadBatch(filename string) ([]ingest.Event, error) {
	f, err := os.Open(filepath.Join(l.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("opening batch %s: %w", filename, err)
	}
	defer f.Close()

	var events []ingest.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var e ingest.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, apperrors.Newf(apperrors.ErrCorruptBatch, 500,
				"%s line %d: %v", filename, line, err)
		}
		if e.ID == "" || e.Type == "" {
			return nil, apperrors.Newf(apperrors.ErrCorruptBatch, 500,
				"%s line %d: missing id or type", filename, line)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading batch %s: %w", filename, err)
	}
	return events, nil
}

// Dir returns the directory the log stages batches in.
func (l *AppendLog) Dir() string {
	return l.dir
}
