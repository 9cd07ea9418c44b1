// Package pgstore implements ports.JobStore over gorm, backed by either
// postgres or sqlite (§ ambient stack — the teacher's jobs store pattern,
// generalized from a single course_generation_run table to the job
// status/artifact/input rows this runtime needs).
package pgstore

import (
	"time"

	"gorm.io/datatypes"
)

// JobStatusRow persists one job's current status blob.
type JobStatusRow struct {
	JobID       string `gorm:"primaryKey;column:job_id"`
	Status      string
	StageIndex  int
	TotalStages int
	StageKey    string
	Message     string
	Progress    int
	Metrics     datatypes.JSON
	UpdatedAt   time.Time
}

func (JobStatusRow) TableName() string { return "mix_job_status" }

// JobArtifactRow persists one named artifact blob for a job. Artifacts are
// write-once per (job_id, name) at the application layer; the table itself
// does not enforce that beyond the composite primary key preventing a
// second row with the same key pair (an upsert here is a bug report, not a
// retry).
type JobArtifactRow struct {
	JobID     string `gorm:"primaryKey;column:job_id"`
	Name      string `gorm:"primaryKey;column:name"`
	Data      []byte
	CreatedAt time.Time
}

func (JobArtifactRow) TableName() string { return "mix_job_artifacts" }

// JobInputRow persists one named raw input blob (a stem's WAV bytes) for a
// job, keyed the same way as JobArtifactRow.
type JobInputRow struct {
	JobID     string `gorm:"primaryKey;column:job_id"`
	Name      string `gorm:"primaryKey;column:name"`
	Data      []byte
	CreatedAt time.Time
}

func (JobInputRow) TableName() string { return "mix_job_inputs" }
