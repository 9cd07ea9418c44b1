package pipeline

import "fmt"

// The error taxonomy below covers the failure modes the Orchestrator and
// Stage Runner report themselves (§7); Run also passes through
// contracts.UnknownStageError and plain wrapped errors (WAV decode at
// ingest, artifact writes). Every error type here carries enough
// structure for a caller to branch on kind via errors.As without parsing
// strings, and wraps its cause where one exists.

// InvalidPlanError reports a resolved plan that violates the dependency
// invariant I4: some enabled stage's DependsOn was filtered out.
type InvalidPlanError struct {
	StageID   string
	MissingID string
}

func (e *InvalidPlanError) Error() string {
	return fmt.Sprintf("invalid plan: stage %q depends on %q, which is not enabled", e.StageID, e.MissingID)
}

// InputMissingError reports a job with zero loadable stems.
type InputMissingError struct {
	JobID string
}

func (e *InputMissingError) Error() string {
	return fmt.Sprintf("job %q: no stems could be loaded from the supplied input set", e.JobID)
}

// SampleRateMismatchError reports a stem whose sample rate disagrees with
// the rate established by the first stem ingested for the job (I2). This
// runtime has no resampling structural stage, so a mismatched stem is
// rejected rather than silently re-rated.
type SampleRateMismatchError struct {
	JobID    string
	StemName string
	Expected int
	Actual   int
}

func (e *SampleRateMismatchError) Error() string {
	return fmt.Sprintf("job %q: stem %q sample rate %d does not match job rate %d", e.JobID, e.StemName, e.Actual, e.Expected)
}

// DependencyMissingError reports a stage whose DependsOn contract was never
// run for this job (distinct from InvalidPlanError: this is a runtime check
// against recorded AnalysisRecords, the other is a plan-resolution check).
type DependencyMissingError struct {
	StageID      string
	DependencyID string
}

func (e *DependencyMissingError) Error() string {
	return fmt.Sprintf("stage %q: dependency %q has not run", e.StageID, e.DependencyID)
}

// AnalysisFailedError wraps an error returned from a stage's analyse() call.
type AnalysisFailedError struct {
	StageID string
	Cause   error
}

func (e *AnalysisFailedError) Error() string {
	return fmt.Sprintf("stage %q: analyse failed: %v", e.StageID, e.Cause)
}

func (e *AnalysisFailedError) Unwrap() error { return e.Cause }

// ProcessFailedError wraps an error returned from a stage's process() call.
type ProcessFailedError struct {
	StageID string
	Cause   error
}

func (e *ProcessFailedError) Error() string {
	return fmt.Sprintf("stage %q: process failed: %v", e.StageID, e.Cause)
}

func (e *ProcessFailedError) Unwrap() error { return e.Cause }

// ArtifactWriteFailedError wraps an error returned by an ArtifactSink.
type ArtifactWriteFailedError struct {
	Name  string
	Cause error
}

func (e *ArtifactWriteFailedError) Error() string {
	return fmt.Sprintf("artifact %q: write failed: %v", e.Name, e.Cause)
}

func (e *ArtifactWriteFailedError) Unwrap() error { return e.Cause }

// CancelledError reports a job that observed a cancellation request between
// two stages (§4.5, §7). It is not wrapped over another error: cancellation
// is cooperative and always originates from JobContext.IsCancelled.
type CancelledError struct {
	JobID     string
	AtStageID string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("job %q: cancelled before stage %q", e.JobID, e.AtStageID)
}
