// Copyright 2025 James Ross

// Package worker implements the single-flight queue drain: an advisory
// file lock enforcing at most one worker process, a coalescing trigger so
// bursts of ingest requests collapse into one drain pass, and the per-job
// pipeline that carries a ticket through fetch/LLM/TTS/persist.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ghostradio/podcastd/internal/config"
	"github.com/ghostradio/podcastd/internal/jobstatus"
	"github.com/ghostradio/podcastd/internal/obs"
	"github.com/ghostradio/podcastd/internal/queue"
	"go.uber.org/zap"
)

// runner is the per-ticket pipeline Worker drives; satisfied by *Pipeline
// in production and a fake in tests.
type runner interface {
	Run(ctx context.Context, t queue.Ticket) error
}

// Worker drains the ticket queue sequentially, one ticket at a time, and is
// safe to Trigger concurrently from many HTTP handler goroutines.
type Worker struct {
	cfg      config.Worker
	store    *queue.Store
	statuses *jobstatus.Store
	pipeline runner
	log      *zap.Logger

	mu       sync.Mutex
	draining bool
	pending  bool

	lock *singletonLock
}

// New builds a Worker. Acquire must be called once, by the single process
// instance allowed to drain, before Trigger is used.
func New(cfg config.Worker, store *queue.Store, statuses *jobstatus.Store, pipeline *Pipeline, log *zap.Logger) *Worker {
	return &Worker{cfg: cfg, store: store, statuses: statuses, pipeline: pipeline, log: log}
}

// Acquire takes the process-wide singleton lock. It must succeed before the
// worker drains; a second process failing to acquire it should exit rather
// than silently drain concurrently with the first.
func (w *Worker) Acquire() error {
	lock, err := acquireSingletonLock(w.cfg.LockPath)
	if err != nil {
		return err
	}
	w.lock = lock
	return nil
}

// Release gives up the singleton lock on shutdown.
func (w *Worker) Release() {
	w.lock.release()
}

// Trigger schedules a drain pass. If a drain is already running, the
// request is coalesced: at most one more pass runs after the current one
// finishes, regardless of how many Trigger calls arrive in the meantime.
func (w *Worker) Trigger(ctx context.Context) {
	w.mu.Lock()
	if w.draining {
		w.pending = true
		w.mu.Unlock()
		return
	}
	w.draining = true
	w.mu.Unlock()

	go w.drainLoop(ctx)
}

func (w *Worker) drainLoop(ctx context.Context) {
	for {
		w.drainOnce(ctx)

		w.mu.Lock()
		if w.pending {
			w.pending = false
			w.mu.Unlock()
			continue
		}
		w.draining = false
		w.mu.Unlock()
		return
	}
}

// drainOnce processes every currently-pending ticket once, in queue_id
// (chronological) order, sequentially.
func (w *Worker) drainOnce(ctx context.Context) {
	tickets, err := w.store.ListPending()
	if err != nil {
		w.log.Error("list pending tickets failed", obs.Err(err))
		return
	}

	for _, t := range tickets {
		w.processTicket(ctx, t)
	}
}

func (w *Worker) processTicket(ctx context.Context, t queue.Ticket) {
	defer w.recoverCrash(t)

	stageStart := time.Now()
	err := w.pipeline.Run(ctx, t)
	obs.StageDuration.WithLabelValues("ticket").Observe(time.Since(stageStart).Seconds())

	switch {
	case err == nil:
		if mErr := w.store.MarkProcessed(t.SourcePath); mErr != nil {
			w.log.Error("mark processed failed", obs.String("queue_id", t.QueueID), obs.Err(mErr))
		}

	case err == errCancelled:
		// Cancellation consumes the ticket: no retry, moved straight to
		// processed so it never resurfaces in a future drain pass.
		if mErr := w.store.MarkProcessed(t.SourcePath); mErr != nil {
			w.log.Error("mark processed (cancelled) failed", obs.String("queue_id", t.QueueID), obs.Err(mErr))
		}

	default:
		newPath, rErr := w.store.Retry(t.SourcePath)
		if rErr != nil {
			w.log.Error("retry ticket failed", obs.String("queue_id", t.QueueID), obs.Err(rErr))
			return
		}
		if newPath == "" {
			if fErr := w.store.MarkFailed(t.SourcePath, err.Error()); fErr != nil {
				w.log.Error("mark failed failed", obs.String("queue_id", t.QueueID), obs.Err(fErr))
			}
			return
		}
		w.log.Warn("ticket requeued for retry", obs.String("queue_id", t.QueueID), obs.Err(err))
	}
}

// recoverCrash catches a panic unwinding out of processTicket so one bad
// ticket cannot take the whole drain loop down with it. It fails the ticket
// that was in flight plus every other job left stranded in a non-terminal
// status, then lets the drain loop move on to the next ticket.
func (w *Worker) recoverCrash(t queue.Ticket) {
	rec := recover()
	if rec == nil {
		return
	}
	w.log.Error("worker pass panicked",
		obs.String("queue_id", t.QueueID),
		obs.String("job_id", t.JobID),
		zap.Any("panic", rec),
	)

	msg := fmt.Sprintf("worker crashed: %v", rec)

	jobs, err := w.statuses.ListNonTerminal()
	if err != nil {
		w.log.Error("list non-terminal jobs after crash failed", obs.Err(err))
	}
	for _, j := range jobs {
		if _, sErr := w.statuses.SetError(j.ID, msg, nil); sErr != nil {
			w.log.Error("mark job failed after crash failed", obs.String("job_id", j.ID), obs.Err(sErr))
		}
	}

	if mErr := w.store.MarkFailed(t.SourcePath, msg); mErr != nil {
		w.log.Error("mark ticket failed after crash failed", obs.String("queue_id", t.QueueID), obs.Err(mErr))
	}
}

// PruneProcessed deletes processed tickets older than the configured
// retention window. Intended to be called periodically by the caller's own
// ticker loop (see cmd/podcastd).
func (w *Worker) PruneProcessed() {
	n, err := w.store.PruneProcessed(w.cfg.ProcessedKeepDays)
	if err != nil {
		w.log.Warn("prune processed tickets failed", obs.Err(err))
		return
	}
	if n > 0 {
		w.log.Info("pruned processed tickets", obs.Int("count", n))
	}
}
