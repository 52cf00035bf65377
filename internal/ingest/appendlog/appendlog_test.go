package appendlog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/atlas-stream/event-pipeline/internal/ingest"
	apperrors "github.com/atlas-stream/event-pipeline/pkg/errors"
)

func testEvents(n int) []ingest.Event {
	events := make([]ingest.Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, ingest.Event{
			ID:        "evt-" + string(rune('a'+i)),
			Type:      "test",
			Data:      json.RawMessage(`{"value":1}`),
			Timestamp: 1234567890 + int64(i),
		})
	}
	return events
}

func TestWriteAndReadBatch(t *testing.T) {
	log, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events := testEvents(5)
	filename, err := log.WriteBatch(events)
	if err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if filename == "" {
		t.Fatal("WriteBatch returned empty filename")
	}

	got, err := log.ReadBatch(filename)
	if err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("ReadBatch returned %d events, want %d", len(got), len(events))
	}
	for i := range events {
		if got[i].ID != events[i].ID || got[i].Type != events[i].Type || got[i].Timestamp != events[i].Timestamp {
			t.Errorf("event %d = %+v, want %+v", i, got[i], events[i])
		}
	}
}

func TestWriteBatchLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := log.WriteBatch(testEvents(3)); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestDeleteBatchIdempotent(t *testing.T) {
	log, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	filename, err := log.WriteBatch(testEvents(1))
	if err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	if err := log.DeleteBatch(filename); err != nil {
		t.Fatalf("DeleteBatch: %v", err)
	}
	// Deleting again must not be an error.
	if err := log.DeleteBatch(filename); err != nil {
		t.Fatalf("second DeleteBatch: %v", err)
	}
	if err := log.DeleteBatch("batch_never_existed.jsonl"); err != nil {
		t.Fatalf("DeleteBatch of missing file: %v", err)
	}
}

func TestListPendingSorted(t *testing.T) {
	log, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var written []string
	for i := 0; i < 3; i++ {
		filename, err := log.WriteBatch(testEvents(1))
		if err != nil {
			t.Fatalf("WriteBatch %d: %v", i, err)
		}
		written = append(written, filename)
	}

	pending, err := log.ListPending()
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("ListPending returned %d files, want 3", len(pending))
	}
	if !sort.StringsAreSorted(pending) {
		t.Errorf("ListPending not sorted: %v", pending)
	}
	// The counter makes write order and lexicographic order agree.
	for i := range written {
		if pending[i] != written[i] {
			t.Errorf("pending[%d] = %s, want %s", i, pending[i], written[i])
		}
	}
}

func TestListPendingIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := log.WriteBatch(testEvents(1)); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	pending, err := log.ListPending()
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("ListPending returned %d files, want 1: %v", len(pending), pending)
	}
}

func TestReadBatchCorrupt(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", "{\"id\":\"a\",\"type\":\"t\"}\nnot json at all\n"},
		{"missing id", "{\"type\":\"t\",\"data\":{},\"timestamp\":1}\n"},
		{"missing type", "{\"id\":\"a\",\"data\":{},\"timestamp\":1}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filename := "batch_19700101_000000_99.jsonl"
			if err := os.WriteFile(filepath.Join(dir, filename), []byte(tt.content), 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			_, err := log.ReadBatch(filename)
			if !errors.Is(err, apperrors.ErrCorruptBatch) {
				t.Errorf("ReadBatch error = %v, want ErrCorruptBatch", err)
			}
		})
	}
}

func TestReadBatchSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	content := "{\"id\":\"a\",\"type\":\"t\",\"data\":{},\"timestamp\":1}\n\n{\"id\":\"b\",\"type\":\"t\",\"data\":{},\"timestamp\":2}\n"
	filename := "batch_19700101_000000_0.jsonl"
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	events, err := log.ReadBatch(filename)
	if err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("ReadBatch returned %d events, want 2", len(events))
	}
}
