package pipeline

import (
	"context"
	"time"

	"github.com/mixmaster-audio/pipeline/internal/analysis"
	"github.com/mixmaster-audio/pipeline/internal/contracts"
)

// Runner is the Stage Runner (C4): it drives exactly one stage through the
// analyse/process/analyse/diff cycle described in §4.4. It holds no
// per-job state of its own — everything it touches lives on the Context it
// is handed — so a single Runner value is reused across every stage of
// every job.
type Runner struct{}

// NewRunner returns a Stage Runner. It has no configuration: behavior is
// entirely determined by the contract's Kind.
func NewRunner() *Runner { return &Runner{} }

// Result is what one Runner.Run pass produces: the pre/post records, their
// diff, and how long the pass took. The Orchestrator turns this directly
// into a ProgressEvent.
type Result struct {
	Pre     analysis.Record
	Post    analysis.Record
	Diff    analysis.Diff
	Timing  StageTiming
}

// Run executes the eight-step stage lifecycle against jc for the given
// contract/stage pair (§4.4):
//
//  1. cooperative cancellation check
//  2. dependency check (I4): every DependsOn id must have a prior record
//  3. pre-analyse
//  4. record the pre AnalysisRecord (append-only)
//  5. process — skipped entirely for KindAnalysisOnly
//  6. mixdown refresh — automatic for KindStemsDSP and KindStructural (I3);
//     stage-owned for KindMixdownDSP; not applicable to KindAnalysisOnly
//  7. post-analyse (reuses the pre record unchanged for KindAnalysisOnly,
//     since Process is a no-op and re-measuring would be redundant work)
//  8. diff + timing
func (runner *Runner) Run(ctx context.Context, jc *Context, c contracts.Contract, stage Stage) (Result, error) {
	started := time.Now()

	if jc.IsCancelled() {
		return Result{}, &CancelledError{JobID: jc.JobID, AtStageID: c.ID}
	}

	for _, dep := range c.DependsOn {
		if _, ok := jc.LastAnalysisFor(dep); !ok {
			return Result{}, &DependencyMissingError{StageID: c.ID, DependencyID: dep}
		}
	}

	pre, err := stage.Analyse(ctx, jc, c)
	if err != nil {
		return Result{}, &AnalysisFailedError{StageID: c.ID, Cause: err}
	}
	jc.RecordAnalysis(pre)

	post := pre
	if c.Kind != contracts.KindAnalysisOnly {
		if err := stage.Process(ctx, jc, c, pre); err != nil {
			return Result{}, &ProcessFailedError{StageID: c.ID, Cause: err}
		}
		if c.Kind == contracts.KindStemsDSP || c.Kind == contracts.KindStructural {
			jc.RefreshMixdown()
		}
		// KindMixdownDSP stages mutate jc.Mixdown() in place and must never
		// trigger a refresh here — refresh recomputes the mixdown from the
		// stem set and would silently discard the stage's own edit.
		// KindStructural stages are refreshed here like stems-dsp stages, so
		// the mixdown always follows the stem layout they leave behind.

		post, err = stage.Analyse(ctx, jc, c)
		if err != nil {
			return Result{}, &AnalysisFailedError{StageID: c.ID, Cause: err}
		}
		jc.RecordAnalysis(post)
	}

	diff := analysis.Compute(pre, post)
	timing := StageTiming{StageID: c.ID, Started: started, Elapsed: time.Since(started)}
	jc.RecordTiming(timing)
	jc.RecordDiff(diff)

	return Result{Pre: pre, Post: post, Diff: diff, Timing: timing}, nil
}
