// Package worker implements the Worker Loop (C6): the long-running process
// that pops job envelopes off a JobQueue, hands each one to the
// Orchestrator, and reports terminal status back to the JobStore (§4.6).
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mixmaster-audio/pipeline/internal/pipeline"
	"github.com/mixmaster-audio/pipeline/internal/platform/logger"
	"github.com/mixmaster-audio/pipeline/internal/ports"
)

// Worker ticks a queue, dispatching each popped job through an
// Orchestrator. One Worker handles jobs strictly serially — concurrency
// across jobs, if wanted, is achieved by running multiple Worker processes
// against the same queue, not by this type internally (§4.6: jobs are
// independent units of work, at-least-once delivered).
type Worker struct {
	log          *logger.Logger
	queue        ports.JobQueue
	store        ports.JobStore
	orchestrator *pipeline.Orchestrator
	pollInterval time.Duration

	// emptyErrs lists the sentinel errors a JobQueue.Pop implementation can
	// return to mean "nothing to do right now, not a failure" — both the
	// in-memory and redis queues use a distinct sentinel for this, so the
	// worker is configured with the set it should treat as quiet polls.
	emptyErrs []error
}

// New builds a Worker. emptyErrs should include whatever sentinel(s) the
// supplied queue's Pop returns on an empty/timed-out poll (e.g.
// ports.ErrQueueEmpty, redisqueue.ErrPopTimeout).
func New(log *logger.Logger, queue ports.JobQueue, store ports.JobStore, orchestrator *pipeline.Orchestrator, pollInterval time.Duration, emptyErrs ...error) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		log:          log.With("component", "Worker"),
		queue:        queue,
		store:        store,
		orchestrator: orchestrator,
		pollInterval: pollInterval,
		emptyErrs:    emptyErrs,
	}
}

// Run drives the poll loop until ctx is cancelled. It is synchronous — the
// caller decides whether to run it on its own goroutine, matching the
// teacher's ticker-driven Start() but without the implicit background
// goroutine, so callers (and tests) can observe when the loop actually
// exits.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			env, err := w.queue.Pop(ctx)
			if err != nil {
				if w.isEmptyPoll(err) {
					continue
				}
				w.log.Warn("queue pop failed", "error", err)
				continue
			}
			w.dispatch(ctx, env)
		}
	}
}

func (w *Worker) isEmptyPoll(err error) bool {
	for _, e := range w.emptyErrs {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// dispatch runs one job to completion, recovering from a panicking stage
// implementation so one bad stage cannot take the whole worker process
// down (grounded on the teacher's recover-and-fail pattern in
// internal/jobs/worker.go).
func (w *Worker) dispatch(ctx context.Context, env ports.JobEnvelope) {
	log := w.log.With("job_id", env.JobID)
	log.Info("job dispatched")

	defer func() {
		if r := recover(); r != nil {
			log.Error("stage handler panic", "panic", r)
			w.publishFailure(ctx, env.JobID, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := w.store.SetStatus(ctx, env.JobID, ports.Status{
		JobID:  env.JobID,
		Status: ports.StatusRunning,
	}); err != nil {
		log.Warn("set running status failed", "error", err)
	}

	inputs, err := w.store.GetInputs(ctx, env.JobID)
	if err != nil {
		log.Error("load inputs failed", "error", err)
		w.publishFailure(ctx, env.JobID, err)
		return
	}

	jc, err := w.orchestrator.Run(ctx, env.JobID, inputs, env.EnabledStageIDs, env.Metadata)
	if err != nil {
		var cancelled *pipeline.CancelledError
		if errors.As(err, &cancelled) {
			log.Info("job cancelled", "at_stage", cancelled.AtStageID)
			w.publishStatus(ctx, env.JobID, ports.StatusCancelled, err.Error(), jc)
			return
		}
		log.Error("job failed", "error", err)
		w.publishFailure(ctx, env.JobID, err)
		return
	}

	log.Info("job succeeded")
	w.publishStatus(ctx, env.JobID, ports.StatusSuccess, "", jc)
}

func (w *Worker) publishFailure(ctx context.Context, jobID string, cause error) {
	w.publishStatus(ctx, jobID, ports.StatusFailure, cause.Error(), nil)
}

func (w *Worker) publishStatus(ctx context.Context, jobID, status, message string, jc *pipeline.Context) {
	st := ports.Status{
		JobID:   jobID,
		Status:  status,
		Message: message,
	}
	if jc != nil {
		st.StageIndex = len(jc.Timings())
		st.TotalStages = len(jc.Timings())
		if status == ports.StatusSuccess {
			st.Progress = 100
			st.Metrics = pipeline.FinalMetrics(jc)
		}
	}
	if err := w.store.SetStatus(ctx, jobID, st); err != nil {
		w.log.Warn("set terminal status failed", "job_id", jobID, "error", err)
	}
}
