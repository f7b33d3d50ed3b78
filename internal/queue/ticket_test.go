// Copyright 2025 James Ross
package queue

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := NewStore(filepath.Join(root, "queue"), filepath.Join(root, "processed"), filepath.Join(root, "failed"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAddAndListPending(t *testing.T) {
	s := newTestStore(t)
	ticket := Ticket{JobID: "abc12345", UserID: "u1", URL: "https://example.test/a", MaxRetries: 3}

	id, err := s.Add(ticket)
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected non-empty queue id")
	}

	pending, err := s.ListPending()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending ticket, got %d", len(pending))
	}
	if pending[0].JobID != "abc12345" {
		t.Fatalf("unexpected job id %q", pending[0].JobID)
	}
	if pending[0].SourcePath == "" {
		t.Fatal("expected source path to be set")
	}
}

func TestMarkProcessedMovesFile(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Add(Ticket{JobID: "j1", UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	pending, _ := s.ListPending()
	if err := s.MarkProcessed(pending[0].SourcePath); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(s.queueDir, id+".json")); !os.IsNotExist(err) {
		t.Fatal("expected ticket removed from queue dir")
	}
	if _, err := os.Stat(filepath.Join(s.processedDir, id+".json")); err != nil {
		t.Fatalf("expected ticket present in processed dir: %v", err)
	}
}

func TestRetryExhaustion(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add(Ticket{JobID: "j1", UserID: "u1", MaxRetries: 1})
	if err != nil {
		t.Fatal(err)
	}
	pending, _ := s.ListPending()
	source := pending[0].SourcePath

	newID, err := s.Retry(source)
	if err != nil {
		t.Fatal(err)
	}
	if newID == "" {
		t.Fatal("expected a retry to succeed under max_retries")
	}

	pending, _ = s.ListPending()
	if len(pending) != 1 {
		t.Fatalf("expected exactly one re-queued ticket, got %d", len(pending))
	}
	if pending[0].RetryCount != 1 {
		t.Fatalf("expected retry_count 1, got %d", pending[0].RetryCount)
	}

	// Second retry exceeds max_retries=1.
	newID, err = s.Retry(pending[0].SourcePath)
	if err != nil {
		t.Fatal(err)
	}
	if newID != "" {
		t.Fatal("expected retry exhaustion to return empty id")
	}
}

func TestMarkFailedAnnotatesAndMoves(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add(Ticket{JobID: "j1", UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	pending, _ := s.ListPending()
	if err := s.MarkFailed(pending[0].SourcePath, "tts exhausted"); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(s.failedDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 failed ticket, got %d", len(entries))
	}
}
