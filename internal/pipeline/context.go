// Package pipeline implements the Job Context, Stage interface and
// registry, Stage Runner, and Orchestrator (§3, §4). It is the runtime core
// of the mix-and-master engine: everything here operates on data already in
// memory and never talks to a queue, a database, or the filesystem directly
// — those concerns live behind internal/ports and are injected.
package pipeline

import (
	"sync"
	"time"

	"github.com/mixmaster-audio/pipeline/internal/analysis"
	"github.com/mixmaster-audio/pipeline/internal/audio"
)

// StageTiming records how long one stage's runner pass took (§3).
type StageTiming struct {
	StageID string
	Started time.Time
	Elapsed time.Duration
}

// Context is the JobContext (C2): the single mutable object threaded through
// every stage invocation for one job. It owns the stems, the derived
// mixdown, free-form session metadata, the append-only analysis history,
// timings, produced artifacts, and the cooperative cancellation flag.
//
// A Context is not safe for concurrent use by multiple stages running
// against the *same* job — the Stage Runner and Orchestrator only ever
// drive one stage at a time per job (§4.4/§4.5). It is safe for the
// cancellation flag specifically to be set from a different goroutine than
// the one running the pipeline (that is the whole point of RequestCancel),
// so that one field is guarded separately.
type Context struct {
	JobID      string
	SampleRate int

	stems    map[string]*audio.Stem // keyed by file name
	mixdown  *audio.Mixdown
	metadata map[string]any

	analysisResults []analysis.Record // append-only
	timings         []StageTiming
	diffs           []analysis.Diff
	artifacts       map[string][]byte

	cancelMu  sync.Mutex
	cancelled bool
}

// NewContext builds an empty JobContext for the given job id and sample
// rate. Sample rate is fixed for the lifetime of the job (I2): every stem
// loaded into this context must already be at this rate.
func NewContext(jobID string, sampleRate int) *Context {
	return &Context{
		JobID:      jobID,
		SampleRate: sampleRate,
		stems:      map[string]*audio.Stem{},
		metadata:   map[string]any{},
		artifacts:  map[string][]byte{},
	}
}

// LoadStems replaces the stem set wholesale — this is the ingest-time
// operation (§4.5 step: Ingest). A stage never calls this itself; only the
// Orchestrator does, once, before the first stage runs.
func (c *Context) LoadStems(stems []*audio.Stem) {
	c.stems = make(map[string]*audio.Stem, len(stems))
	for _, s := range stems {
		c.stems[s.Name] = s
	}
}

// Stems returns the live stem set. Callers that mutate a returned *Stem are
// mutating the job's working copy in place — that is the expected way a
// stems-dsp stage does its work (§4.3).
func (c *Context) Stems() map[string]*audio.Stem {
	return c.stems
}

// StemNames returns the file names of every loaded stem, used to populate
// per-stem AnalysisRecord rows.
func (c *Context) StemNames() []string {
	names := make([]string, 0, len(c.stems))
	for name := range c.stems {
		names = append(names, name)
	}
	return names
}

// Mixdown returns the current mixdown, or nil if RefreshMixdown has never
// been called.
func (c *Context) Mixdown() *audio.Mixdown {
	return c.mixdown
}

// RefreshMixdown recomputes the mixdown from the current stem set (§4.2).
// The Stage Runner calls this automatically after a stems-dsp or
// structural stage's process() returns (I3); a stage that needs a fresh
// mixdown mid-process may also call it directly.
func (c *Context) RefreshMixdown() {
	stems := make([]*audio.Stem, 0, len(c.stems))
	for _, s := range c.stems {
		stems = append(stems, s)
	}
	c.mixdown = audio.Refresh(stems)
}

// Metadata returns the job's free-form session metadata map (populated by
// structural stages such as session_format, read by downstream stages).
func (c *Context) Metadata() map[string]any {
	return c.metadata
}

// MergeMetadata copies every key in src into the job's metadata map,
// overwriting any existing key of the same name. Ingest calls this once,
// before any stage runs, to apply the job submission's free-form session
// config (style preset, per-stem profile map, bus style choices,
// upload-mode hints) onto the context (§3, §4.5 step 2).
func (c *Context) MergeMetadata(src map[string]any) {
	for k, v := range src {
		c.metadata[k] = v
	}
}

// RecordAnalysis appends an AnalysisRecord to the job's history. The
// history is append-only. One Stage Runner pass records a stage once
// (analysis-only) or twice (pre, post); neither Context nor the Runner
// rejects a further record for a stage id that already has one.
func (c *Context) RecordAnalysis(rec analysis.Record) {
	c.analysisResults = append(c.analysisResults, rec)
}

// AnalysisResults returns the full append-only analysis history in
// insertion order.
func (c *Context) AnalysisResults() []analysis.Record {
	return c.analysisResults
}

// LastAnalysisFor returns the most recently recorded AnalysisRecord for a
// given stage id, used by the Stage Runner's dependency check (I4): a
// stage's declared dependency must have produced at least one record
// before the stage itself may run.
func (c *Context) LastAnalysisFor(stageID string) (analysis.Record, bool) {
	for i := len(c.analysisResults) - 1; i >= 0; i-- {
		if c.analysisResults[i].StageID == stageID {
			return c.analysisResults[i], true
		}
	}
	return analysis.Record{}, false
}

// RecordTiming appends one stage's elapsed-time measurement.
func (c *Context) RecordTiming(t StageTiming) {
	c.timings = append(c.timings, t)
}

// Timings returns every recorded stage timing in run order.
func (c *Context) Timings() []StageTiming {
	return c.timings
}

// RecordDiff appends one stage's pre/post diff, used by Finalize to build
// the per-stage section of report.json.
func (c *Context) RecordDiff(d analysis.Diff) {
	c.diffs = append(c.diffs, d)
}

// Diffs returns every recorded stage diff in run order.
func (c *Context) Diffs() []analysis.Diff {
	return c.diffs
}

// PutArtifact stores a named artifact byte blob produced during the run
// (e.g. an intermediate render a stage wants preserved). Artifacts are
// distinct from the final report/mix published by the Orchestrator at
// Finalize, though Finalize uses the same map under the hood.
func (c *Context) PutArtifact(name string, data []byte) {
	c.artifacts[name] = data
}

// GetArtifact retrieves a previously stored artifact.
func (c *Context) GetArtifact(name string) ([]byte, bool) {
	v, ok := c.artifacts[name]
	return v, ok
}

// Artifacts returns the full artifact map. Callers must treat it as
// read-only; use PutArtifact to add entries.
func (c *Context) Artifacts() map[string][]byte {
	return c.artifacts
}

// RequestCancel sets the cooperative cancellation flag (§4.6). It is safe
// to call from any goroutine, including one outside the pipeline's own
// call stack (e.g. a worker handling a separate cancel-request message).
func (c *Context) RequestCancel() {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	c.cancelled = true
}

// IsCancelled reports whether cancellation has been requested. The Stage
// Runner checks this between stages, never mid-stage (§4.5): a stage that
// is already running always completes.
func (c *Context) IsCancelled() bool {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	return c.cancelled
}
