package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mixmaster-audio/pipeline/internal/analysis"
	"github.com/mixmaster-audio/pipeline/internal/audio"
	"github.com/mixmaster-audio/pipeline/internal/contracts"
	"github.com/mixmaster-audio/pipeline/internal/ports"
)

// ReportWAVBitDepth is the bit depth used to encode the final mixdown
// artifact (§4.5 Finalize, §6: full_song.wav is 16- or 32-bit linear PCM
// only). 16-bit keeps the artifact small; a deployment wanting headroom for
// a hotter master stage can still ask for 32-bit via EncodeWAVOptions
// directly.
const ReportWAVBitDepth = 16

// PipelineVersion is stamped into every report.json's pipeline_version
// field (§6). Bump it when the stage roster or report shape changes in a
// way a consumer of report.json would need to branch on.
const PipelineVersion = "1.0.0"

// Orchestrator is the Pipeline Orchestrator (C5): it resolves a job's
// stage plan, ingests its stems, drives the Stage Runner across the plan
// in order, and finalizes the job by publishing the mix report and the
// rendered mixdown. It holds no per-job state — a Context is created fresh
// inside Run for each job.
type Orchestrator struct {
	Contracts *contracts.Registry
	Stages    *Registry
	Runner    *Runner
	Artifacts ports.ArtifactSink
	Progress  ports.ProgressSink
}

// NewOrchestrator wires the four collaborators an Orchestrator needs.
func NewOrchestrator(contractsReg *contracts.Registry, stages *Registry, artifacts ports.ArtifactSink, progress ports.ProgressSink) *Orchestrator {
	return &Orchestrator{
		Contracts: contractsReg,
		Stages:    stages,
		Runner:    NewRunner(),
		Artifacts: artifacts,
		Progress:  progress,
	}
}

// ResolvePlan filters the contract registry's full ordering down to the
// enabled stage ids and validates I4: every surviving contract's
// dependencies must also survive, in contract order. A nil slice means
// "every contract in the registry"; a non-nil, possibly empty slice is
// taken literally — passing []string{} resolves to an empty plan.
func (o *Orchestrator) ResolvePlan(enabledStageIDs []string) ([]contracts.Contract, error) {
	all := o.Contracts.AllInOrder()

	var enabled map[string]bool
	if enabledStageIDs != nil {
		enabled = make(map[string]bool, len(enabledStageIDs))
		for _, id := range enabledStageIDs {
			enabled[id] = true
		}
	}

	plan := make([]contracts.Contract, 0, len(all))
	for _, c := range all {
		if enabled == nil || enabled[c.ID] {
			plan = append(plan, c)
		}
	}

	included := make(map[string]bool, len(plan))
	for _, c := range plan {
		included[c.ID] = true
	}
	for _, c := range plan {
		for _, dep := range c.DependsOn {
			if !included[dep] {
				return nil, &InvalidPlanError{StageID: c.ID, MissingID: dep}
			}
		}
	}
	return plan, nil
}

// Ingest decodes the job's raw WAV input set into Stems and applies the job
// submission's metadata onto the new Context (§4.5 step 2). Every input
// must decode cleanly; the job's sample rate is taken from the first stem
// decoded (stable order, by input name). Per §4.2/I2, this runtime carries
// no resampling structural stage, so any subsequent stem whose rate
// disagrees with the first is rejected outright rather than silently
// ignored.
func (o *Orchestrator) Ingest(jobID string, inputs map[string][]byte, metadata map[string]any) (*Context, error) {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	var stems []*audio.Stem
	sampleRate := 0
	for _, name := range names {
		stem, rate, err := audio.DecodeWAV(name, bytes.NewReader(inputs[name]))
		if err != nil {
			return nil, fmt.Errorf("ingest: decode %q: %w", name, err)
		}
		if sampleRate == 0 {
			sampleRate = rate
		} else if rate != sampleRate {
			return nil, &SampleRateMismatchError{JobID: jobID, StemName: name, Expected: sampleRate, Actual: rate}
		}
		stems = append(stems, stem)
	}
	if len(stems) == 0 {
		return nil, &InputMissingError{JobID: jobID}
	}

	jc := NewContext(jobID, sampleRate)
	jc.LoadStems(stems)
	jc.MergeMetadata(metadata)
	jc.RefreshMixdown()
	return jc, nil
}

// Run executes a complete job end to end: resolve plan, ingest (applying
// the job's metadata), execute every stage in order publishing progress
// after each, and finalize (§4.5). The returned Context is nil when plan
// resolution or ingest fails; on any later failure it is returned
// populated, so a caller can inspect partial history. The error reports
// which stage/phase failed.
func (o *Orchestrator) Run(ctx context.Context, jobID string, inputs map[string][]byte, enabledStageIDs []string, metadata map[string]any) (*Context, error) {
	plan, err := o.ResolvePlan(enabledStageIDs)
	if err != nil {
		return nil, err
	}

	jc, err := o.Ingest(jobID, inputs, metadata)
	if err != nil {
		return nil, err
	}

	total := len(plan)
	for idx, c := range plan {
		stage, err := o.Stages.Get(c.ID)
		if err != nil {
			return jc, err
		}

		res, err := o.Runner.Run(ctx, jc, c, stage)
		if err != nil {
			o.emitFailure(ctx, jobID, c, idx, total, err)
			return jc, err
		}

		o.emitProgress(ctx, jobID, c, idx, total, res)
	}

	if err := o.Finalize(ctx, jc); err != nil {
		return jc, err
	}
	return jc, nil
}

func (o *Orchestrator) emitProgress(ctx context.Context, jobID string, c contracts.Contract, idx, total int, res Result) {
	if o.Progress == nil {
		return
	}
	_ = o.Progress.Emit(ctx, ports.ProgressEvent{
		JobID:       jobID,
		StageID:     c.ID,
		Ordinal:     c.Ordinal,
		StageIndex:  idx,
		TotalStages: total,
		Elapsed:     res.Timing.Elapsed,
		Message:     fmt.Sprintf("stage %s complete", c.ID),
		PreSummary:  res.Pre.Session,
		PostSummary: res.Post.Session,
		DiffSummary: diffSummary(res.Diff),
	})
}

func (o *Orchestrator) emitFailure(ctx context.Context, jobID string, c contracts.Contract, idx, total int, err error) {
	if o.Progress == nil {
		return
	}
	status := ports.StatusFailure
	var cancelled *CancelledError
	if errAs(err, &cancelled) {
		status = ports.StatusCancelled
	}
	_ = o.Progress.Emit(ctx, ports.ProgressEvent{
		JobID:       jobID,
		StageID:     c.ID,
		Ordinal:     c.Ordinal,
		StageIndex:  idx,
		TotalStages: total,
		Message:     fmt.Sprintf("%s: %v", status, err),
	})
}

// Stage status values for ReportStage.Status (§6). Finalize only ever
// observes stages that ran to completion — a job that hit a failure never
// reaches Finalize — so every entry this runtime produces today is
// StageStatusAnalyzed; the other two values are part of the report's
// contract for any future caller that assembles a partial report (e.g. a
// status endpoint surfacing an in-flight job).
const (
	StageStatusAnalyzed = "analyzed"
	StageStatusSkipped  = "skipped"
	StageStatusFailed   = "failed"
)

// StageParameters is the targets/bounds a stage's contract declared,
// carried into its report entry as a record of what the stage was asked to
// do (distinct from Session, which is what it measured).
type StageParameters struct {
	Metrics map[string]float64 `json:"metrics"`
	Limits  map[string]float64 `json:"limits"`
}

// Report is the shape written to report.json at Finalize (§4.5 step 5, §6).
type Report struct {
	PipelineVersion   string             `json:"pipeline_version"`
	GeneratedAtUTC    string             `json:"generated_at_utc"`
	StylePreset       string             `json:"style_preset,omitempty"`
	JobID             string             `json:"job_id"`
	SampleRate        int                `json:"sample_rate"`
	Stages            []ReportStage      `json:"stages"`
	FinalMetrics      map[string]any     `json:"final_metrics"`
	PipelineDurations []PipelineDuration `json:"pipeline_durations"`
	TotalDurationSec  float64            `json:"total_duration_sec"`
}

// PipelineDuration is one stage's wall-clock contribution to the run,
// surfaced separately from the per-stage ReportStage entries so a caller
// can chart total time without walking the full stage list.
type PipelineDuration struct {
	ContractID  string  `json:"contract_id"`
	DurationSec float64 `json:"duration_sec"`
}

// ReportStage is one executed stage's entry in the final report.
type ReportStage struct {
	ContractID string          `json:"contract_id"`
	Name       string          `json:"name"`
	Status     string          `json:"status"`
	Ordinal    int             `json:"ordinal"`
	ElapsedMS  int64           `json:"elapsed_ms"`
	Session    map[string]any  `json:"session"`
	Parameters StageParameters `json:"parameters"`
	Images     []string        `json:"images"`
	Diff       analysis.Diff   `json:"diff"`
}

// Finalize assembles and publishes the two terminal artifacts described in
// §4.5: report.json (pipeline metadata, per-stage session/parameters/diff,
// and final mixdown metrics) and full_song.wav (the final mixdown). It is
// only called after every stage in the plan has completed successfully.
func (o *Orchestrator) Finalize(ctx context.Context, jc *Context) error {
	report := Report{
		PipelineVersion: PipelineVersion,
		GeneratedAtUTC:  time.Now().UTC().Format(time.RFC3339),
		JobID:           jc.JobID,
		SampleRate:      jc.SampleRate,
		FinalMetrics:    FinalMetrics(jc),
	}
	if preset, ok := jc.Metadata()["style_preset"].(string); ok {
		report.StylePreset = preset
	}

	diffsByStage := map[string]analysis.Diff{}
	for _, d := range jc.Diffs() {
		diffsByStage[d.StageID] = d
	}
	postByStage := map[string]analysis.Record{}
	for _, rec := range jc.AnalysisResults() {
		postByStage[rec.StageID] = rec // last write wins: post overwrites pre
	}

	for _, t := range jc.Timings() {
		ordinal := 0
		name := t.StageID
		var params StageParameters
		if contract, err := o.Contracts.Get(t.StageID); err == nil {
			ordinal = contract.Ordinal
			name = contract.Name
			params = StageParameters{Metrics: contract.Metrics, Limits: contract.Limits}
		}
		report.Stages = append(report.Stages, ReportStage{
			ContractID: t.StageID,
			Name:       name,
			Status:     StageStatusAnalyzed,
			Ordinal:    ordinal,
			ElapsedMS:  t.Elapsed.Milliseconds(),
			Session:    postByStage[t.StageID].Session,
			Parameters: params,
			Images:     []string{},
			Diff:       diffsByStage[t.StageID],
		})
		report.PipelineDurations = append(report.PipelineDurations, PipelineDuration{
			ContractID:  t.StageID,
			DurationSec: t.Elapsed.Seconds(),
		})
		report.TotalDurationSec += t.Elapsed.Seconds()
	}

	reportBytes, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return &ArtifactWriteFailedError{Name: "report.json", Cause: err}
	}
	if err := o.Artifacts.PutArtifact(ctx, jc.JobID, "report.json", reportBytes); err != nil {
		return &ArtifactWriteFailedError{Name: "report.json", Cause: err}
	}

	wavBuf := audio.NewMemoryWriteSeeker()
	if m := jc.Mixdown(); m != nil {
		if err := audio.EncodeWAV(wavBuf, m, jc.SampleRate, audio.EncodeWAVOptions{BitDepth: ReportWAVBitDepth}); err != nil {
			return &ArtifactWriteFailedError{Name: "full_song.wav", Cause: err}
		}
	}
	if err := o.Artifacts.PutArtifact(ctx, jc.JobID, "full_song.wav", wavBuf.Bytes()); err != nil {
		return &ArtifactWriteFailedError{Name: "full_song.wav", Cause: err}
	}

	if o.Progress != nil {
		_ = o.Progress.Emit(ctx, ports.ProgressEvent{
			JobID:       jc.JobID,
			StageIndex:  len(jc.Timings()),
			TotalStages: len(jc.Timings()),
			Message:     "finalize complete",
		})
	}
	return nil
}

// FinalMetrics derives the terminal metrics blob (§6 Status blob, §4.5
// Finalize's final_metrics) for a job: loudness/peak/range/tempo/balance/
// correlation measurements of the finished mixdown, plus the key/scale the
// key_detection stage reported if it ran as part of the plan. It is shared
// between Finalize (report.json) and the worker's terminal status publish
// so both surfaces carry the same field set.
func FinalMetrics(jc *Context) map[string]any {
	fm := audio.ComputeFinalMetrics(jc.Mixdown(), jc.SampleRate)
	out := map[string]any{
		"lufs":                     fm.LUFS,
		"true_peak_dbfs":           fm.TruePeakDBFS,
		"lra":                      fm.LRA,
		"tempo_bpm":                fm.TempoBPM,
		"channel_loudness_diff_db": fm.ChannelLoudnessDiffDB,
		"correlation":              fm.Correlation,
		"key":                      "unknown",
		"scale":                    "unknown",
	}
	if rec, ok := jc.LastAnalysisFor("key_detection"); ok {
		if key, ok := rec.Session["key"].(string); ok {
			out["key"] = key
		}
		if scale, ok := rec.Session["scale"].(string); ok {
			out["scale"] = scale
		}
	}
	return out
}

func diffSummary(d analysis.Diff) map[string]any {
	out := make(map[string]any, len(d.Session))
	for k, fd := range d.Session {
		out[k] = fd.Delta
	}
	return out
}

// errAs is a tiny local errors.As wrapper kept in this file to avoid an
// extra import line at every call site.
func errAs(err error, target **CancelledError) bool {
	c, ok := err.(*CancelledError)
	if !ok {
		return false
	}
	*target = c
	return true
}
