// Copyright 2025 James Ross

// Package queue implements the filesystem-backed job queue: three sibling
// directories (queue, processed, failed) each holding one JSON ticket per
// file, with atomic rename used for every state transition.
package queue

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Ticket is a durable queue entry representing an intent to produce one
// episode. It is written once by the ingest server and mutated only by the
// worker (add/retry re-add aside).
type Ticket struct {
	QueueID     string `json:"queue_id"`
	JobID       string `json:"job_id"`
	UserID      string `json:"user_id"`
	URL         string `json:"url,omitempty"`
	RawInput    string `json:"raw_input,omitempty"`
	LLMChoice   string `json:"llm_choice,omitempty"`
	TTSChoice   string `json:"tts_choice,omitempty"`
	TTSOptions  map[string]interface{} `json:"tts_options,omitempty"`
	NeedSummary bool   `json:"need_summary"`
	RetryCount  int    `json:"retry_count"`
	MaxRetries  int    `json:"max_retries"`
	CreatedAt   time.Time `json:"created_at"`

	// FailedAt/Error are populated only once a ticket lands in failed/.
	FailedAt *time.Time `json:"failed_at,omitempty"`
	Error    string     `json:"error,omitempty"`

	// SourcePath is not persisted; it records where this ticket was read
	// from so callers can pass it back into MarkProcessed/MarkFailed/Retry.
	SourcePath string `json:"-"`
}

// Store is a filesystem-backed queue rooted at three sibling directories.
type Store struct {
	queueDir     string
	processedDir string
	failedDir    string
}

// NewStore creates the three queue directories (if absent) and returns a
// Store bound to them.
func NewStore(queueDir, processedDir, failedDir string) (*Store, error) {
	for _, d := range []string{queueDir, processedDir, failedDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create queue dir %s: %w", d, err)
		}
	}
	return &Store{queueDir: queueDir, processedDir: processedDir, failedDir: failedDir}, nil
}

// NewQueueID returns a sortable `YYYYMMDD_HHMMSS_<8-hex>` id.
func NewQueueID() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s", time.Now().UTC().Format("20060102_150405"), hex.EncodeToString(buf[:])), nil
}

// Add writes a new ticket into queue/ via write-to-temp + rename, assigning
// it a fresh queue_id. Returns the assigned queue_id.
func (s *Store) Add(t Ticket) (string, error) {
	queueID, err := NewQueueID()
	if err != nil {
		return "", fmt.Errorf("generate queue id: %w", err)
	}
	t.QueueID = queueID
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	path := filepath.Join(s.queueDir, queueID+".json")
	if err := writeJSONAtomic(path, t); err != nil {
		return "", err
	}
	return queueID, nil
}

// ListPending returns all queue/*.json tickets sorted by queue_id ascending
// (equivalently, chronological order), each carrying its SourcePath.
func (s *Store) ListPending() ([]Ticket, error) {
	entries, err := os.ReadDir(s.queueDir)
	if err != nil {
		return nil, fmt.Errorf("read queue dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	tickets := make([]Ticket, 0, len(names))
	for _, name := range names {
		path := filepath.Join(s.queueDir, name)
		t, err := readTicket(path)
		if err != nil {
			// A corrupt or half-written file is skipped rather than
			// aborting the whole drain pass.
			continue
		}
		t.SourcePath = path
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// MarkProcessed renames a claimed ticket's file into processed/.
func (s *Store) MarkProcessed(sourcePath string) error {
	dest := filepath.Join(s.processedDir, filepath.Base(sourcePath))
	return os.Rename(sourcePath, dest)
}

// MarkFailed reads the ticket at sourcePath, attaches failed_at and the
// given error text, writes it into failed/, and removes the source file.
func (s *Store) MarkFailed(sourcePath string, errText string) error {
	t, err := readTicket(sourcePath)
	if err != nil {
		return fmt.Errorf("read ticket for failure: %w", err)
	}
	now := time.Now().UTC()
	t.FailedAt = &now
	t.Error = errText

	dest := filepath.Join(s.failedDir, filepath.Base(sourcePath))
	if err := writeJSONAtomic(dest, t); err != nil {
		return err
	}
	return os.Remove(sourcePath)
}

// Retry reads the ticket at sourcePath, increments retry_count, and if that
// is still within max_retries re-adds it with a fresh queue_id (returning
// the new id) before removing the original file. If retries are exhausted
// it returns ("", nil) and leaves the caller to call MarkFailed.
func (s *Store) Retry(sourcePath string) (string, error) {
	t, err := readTicket(sourcePath)
	if err != nil {
		return "", fmt.Errorf("read ticket for retry: %w", err)
	}
	t.RetryCount++
	if t.RetryCount > t.MaxRetries {
		return "", nil
	}
	newID, err := s.Add(t)
	if err != nil {
		return "", err
	}
	if err := os.Remove(sourcePath); err != nil {
		return "", fmt.Errorf("remove exhausted ticket source: %w", err)
	}
	return newID, nil
}

// PruneProcessed deletes processed/*.json entries older than keepDays,
// judged by file modification time.
func (s *Store) PruneProcessed(keepDays int) (int, error) {
	cutoff := time.Now().Add(-time.Duration(keepDays) * 24 * time.Hour)
	entries, err := os.ReadDir(s.processedDir)
	if err != nil {
		return 0, fmt.Errorf("read processed dir: %w", err)
	}
	deleted := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(s.processedDir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				deleted++
			}
		}
	}
	return deleted, nil
}

// Depth reports how many tickets currently sit in each of the three
// directories, keyed by "queue", "processed", "failed".
func (s *Store) Depth() (map[string]int, error) {
	out := map[string]int{}
	for name, dir := range map[string]string{"queue": s.queueDir, "processed": s.processedDir, "failed": s.failedDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		n := 0
		for _, e := range entries {
			if !e.IsDir() {
				n++
			}
		}
		out[name] = n
	}
	return out, nil
}

func readTicket(path string) (Ticket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Ticket{}, err
	}
	var t Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return Ticket{}, err
	}
	return t, nil
}

// writeJSONAtomic marshals v as indented UTF-8 JSON and writes it via a
// temp file in the same directory followed by a rename, so readers never
// observe a partial write.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
