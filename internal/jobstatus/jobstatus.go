// Copyright 2025 James Ross

// Package jobstatus implements the per-job status document and its state
// machine: one JSON file per job, written by the worker, polled by the
// ingest server's progress endpoint.
package jobstatus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Status is one of the job lifecycle's wire-exact status strings.
type Status string

const (
	Pending       Status = "pending"
	Queued        Status = "queued"
	Processing    Status = "processing"
	Fetching      Status = "fetching"
	LLMProcessing Status = "llm_processing"
	TTSGenerating Status = "tts_generating"
	Completed     Status = "completed"
	Failed        Status = "failed"
	Cancelled     Status = "cancelled"
	Timeout       Status = "timeout"
)

var terminal = map[Status]bool{
	Completed: true,
	Failed:    true,
	Cancelled: true,
	Timeout:   true,
}

// IsTerminal reports whether s accepts no further mutation.
func IsTerminal(s Status) bool { return terminal[s] }

// StageEvent is one entry in a job's stage history.
type StageEvent struct {
	Stage     string    `json:"stage"`
	Progress  int       `json:"progress"`
	Timestamp time.Time `json:"timestamp"`
}

// Job is the live, observable state of a ticket's processing.
type Job struct {
	ID             string                 `json:"id"`
	URL            string                 `json:"url,omitempty"`
	UserID         string                 `json:"user_id"`
	Status         Status                 `json:"status"`
	Progress       int                    `json:"progress"`
	Message        string                 `json:"message,omitempty"`
	Stage          string                 `json:"stage,omitempty"`
	StageStartTime time.Time              `json:"stage_start_time,omitempty"`
	Stages         []StageEvent           `json:"stages,omitempty"`
	Result         map[string]interface{} `json:"result,omitempty"`
	Error          string                 `json:"error,omitempty"`
	ErrorDetails   map[string]interface{} `json:"error_details,omitempty"`
	Cancelled      bool                   `json:"cancelled"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
}

// New returns a freshly created Job in the PENDING status.
func New(id, url, userID string) Job {
	now := time.Now().UTC()
	return Job{
		ID:        id,
		URL:       url,
		UserID:    userID,
		Status:    Pending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Store is a filesystem-backed collection of Job documents rooted at one
// directory, one JSON file per job named `<id>.json`.
type Store struct {
	dir string
}

// NewStore creates dir (if absent) and returns a Store bound to it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Create persists a brand new Job document.
func (s *Store) Create(j Job) error {
	return writeJSONAtomic(s.path(j.ID), j)
}

// Get reads and parses the Job document for id.
func (s *Store) Get(id string) (Job, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return Job{}, err
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("parse job %s: %w", id, err)
	}
	return j, nil
}

// Update applies mutate to the stored job and writes it back, unless the
// job is already in a terminal status — in which case Update is a no-op
// that returns the unmodified job and ErrTerminal.
func (s *Store) Update(id string, mutate func(*Job)) (Job, error) {
	j, err := s.Get(id)
	if err != nil {
		return Job{}, err
	}
	if IsTerminal(j.Status) {
		return j, ErrTerminal
	}
	mutate(&j)
	j.UpdatedAt = time.Now().UTC()
	if err := writeJSONAtomic(s.path(id), j); err != nil {
		return Job{}, err
	}
	return j, nil
}

// ErrTerminal is returned by Update when the job has already reached a
// terminal status.
var ErrTerminal = fmt.Errorf("jobstatus: job already in a terminal status")

// AdvanceStage transitions the job to status/stage, bumping progress and
// appending a stage-history entry. It is a no-op returning ErrTerminal if
// the job is already terminal.
func (s *Store) AdvanceStage(id string, status Status, stage string, progress int, message string) (Job, error) {
	return s.Update(id, func(j *Job) {
		j.Status = status
		j.Stage = stage
		j.Message = message
		j.StageStartTime = time.Now().UTC()
		if progress > j.Progress {
			j.Progress = progress
		}
		j.Stages = append(j.Stages, StageEvent{Stage: stage, Progress: j.Progress, Timestamp: j.StageStartTime})
	})
}

// SetResult marks the job COMPLETED with progress 100 and the given result
// payload.
func (s *Store) SetResult(id string, result map[string]interface{}) (Job, error) {
	return s.Update(id, func(j *Job) {
		j.Status = Completed
		j.Progress = 100
		j.Result = result
		now := time.Now().UTC()
		j.CompletedAt = &now
	})
}

// SetError marks the job FAILED with the given message and detail object.
func (s *Store) SetError(id string, message string, details map[string]interface{}) (Job, error) {
	return s.Update(id, func(j *Job) {
		j.Status = Failed
		j.Error = message
		j.ErrorDetails = details
		now := time.Now().UTC()
		j.CompletedAt = &now
	})
}

// cancellableFrom lists the statuses from which a job may still be
// cancelled.
var cancellableFrom = map[Status]bool{
	Pending:       true,
	Queued:        true,
	Processing:    true,
	Fetching:      true,
	LLMProcessing: true,
	TTSGenerating: true,
}

// ErrNotCancellable is returned by Cancel when the job's current status no
// longer accepts cancellation.
var ErrNotCancellable = fmt.Errorf("jobstatus: job is not cancellable in its current status")

// Cancel sets the job CANCELLED if it is currently in a cancellable
// status; otherwise it returns ErrNotCancellable without mutating anything.
func (s *Store) Cancel(id, reason string) (Job, error) {
	j, err := s.Get(id)
	if err != nil {
		return Job{}, err
	}
	if !cancellableFrom[j.Status] {
		return j, ErrNotCancellable
	}
	j.Cancelled = true
	j.Status = Cancelled
	j.Message = reason
	now := time.Now().UTC()
	j.CompletedAt = &now
	j.UpdatedAt = now
	if err := writeJSONAtomic(s.path(id), j); err != nil {
		return Job{}, err
	}
	return j, nil
}

// ListNonTerminal returns every job whose status has not yet reached a
// terminal state. A worker crash-recovery sweep uses this to fail every job
// left stranded mid-pipeline by an unexpected process exit.
func (s *Store) ListNonTerminal() ([]Job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read jobs dir: %w", err)
	}
	var out []Job
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var j Job
		if err := json.Unmarshal(data, &j); err != nil {
			continue
		}
		if !IsTerminal(j.Status) {
			out = append(out, j)
		}
	}
	return out, nil
}

// IsCancelled re-reads the stored job and reports its cancelled flag,
// without regard to its current status. The worker calls this at every
// inter-stage boundary.
func (s *Store) IsCancelled(id string) (bool, error) {
	j, err := s.Get(id)
	if err != nil {
		return false, err
	}
	return j.Cancelled, nil
}

// TimeoutWarning reports whether the job's current stage has run longer
// than budget, without mutating any state.
func TimeoutWarning(j Job, budget time.Duration) bool {
	if j.StageStartTime.IsZero() || IsTerminal(j.Status) {
		return false
	}
	return time.Since(j.StageStartTime) > budget
}

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
	return os.Rename(tmpPath, path)
}
