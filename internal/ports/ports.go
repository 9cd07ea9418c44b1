// Package ports declares the abstract boundaries the pipeline core depends
// on but does not implement: JobQueue and JobStore transport the job
// lifecycle in and out of the runtime; ArtifactSink and ProgressSink are the
// narrower views of JobStore that the Orchestrator and Stage Runner
// actually touch (§4.7, §7).
//
// These are interfaces only — per spec.md §1, the HTTP surface, the queue,
// and the key/value store backing a production deployment are external
// collaborators. Concrete adapters (redisqueue, pgstore) live in sibling
// packages and are wired up by cmd/worker; the core never imports them.
package ports

import (
	"context"
	"time"
)

// JobEnvelope is the queue payload describing one submitted job (§6).
type JobEnvelope struct {
	JobID           string
	MediaRef        string
	EnabledStageIDs []string // nil means "all contracts, in registry order"
	Metadata        map[string]any
}

// Status is the JobStore value for a job_id (§6 Status blob).
type Status struct {
	JobID       string
	Status      string // pending | running | success | failure | cancelled
	StageIndex  int
	TotalStages int
	StageKey    string
	Message     string
	Progress    int
	Metrics     map[string]any // only populated on terminal success
}

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSuccess   = "success"
	StatusFailure   = "failure"
	StatusCancelled = "cancelled"
)

// ProgressEvent is what the Stage Runner/Orchestrator hands to a
// ProgressSink after each stage (§4.4 step 8, §4.7).
type ProgressEvent struct {
	JobID       string
	StageID     string
	Ordinal     int
	StageIndex  int
	TotalStages int
	Elapsed     time.Duration
	Message     string

	PreSummary  map[string]any
	PostSummary map[string]any
	DiffSummary map[string]any
}

// JobQueue delivers job envelopes to workers. Delivery is at-least-once
// (§4.7) — the Worker Loop must be idempotent on job_id.
type JobQueue interface {
	Pop(ctx context.Context) (JobEnvelope, error)
	Push(ctx context.Context, env JobEnvelope) error
}

// JobStore is the authoritative terminal state and artifact store for a job.
// Status blobs are overwritable; artifacts are write-once per (job_id, name).
type JobStore interface {
	SetStatus(ctx context.Context, jobID string, status Status) error
	GetStatus(ctx context.Context, jobID string) (Status, bool, error)
	PutArtifact(ctx context.Context, jobID, name string, data []byte) error
	GetArtifact(ctx context.Context, jobID, name string) ([]byte, bool, error)
	PutInput(ctx context.Context, jobID, name string, data []byte) error
	GetInputs(ctx context.Context, jobID string) (map[string][]byte, error)
}

// ArtifactSink is the thin adapter over JobStore the Orchestrator's
// finalize step uses to publish report.json / full_song.wav (§4.7).
type ArtifactSink interface {
	PutArtifact(ctx context.Context, jobID, name string, data []byte) error
}

// ProgressSink publishes non-terminal progress and (via SetStatus) terminal
// status for a job. The default composition described in §4.7 is: build a
// status blob from the progress event and call JobStore.SetStatus.
type ProgressSink interface {
	Emit(ctx context.Context, ev ProgressEvent) error
}

// JobStoreArtifactSink adapts a JobStore to the narrower ArtifactSink
// interface the Orchestrator depends on.
type JobStoreArtifactSink struct{ Store JobStore }

func (a JobStoreArtifactSink) PutArtifact(ctx context.Context, jobID, name string, data []byte) error {
	return a.Store.PutArtifact(ctx, jobID, name, data)
}
