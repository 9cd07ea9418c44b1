// Package analysis holds the measurement data model shared between stages,
// the Stage Runner, and the final report: AnalysisRecord and StageDiff (§3).
package analysis

import "github.com/mixmaster-audio/pipeline/internal/contracts"

// StemMeasurement is one stem's measurement row within an AnalysisRecord.
// FileName is the only field every stage must populate; everything else is
// stage-specific and carried as free-form values.
type StemMeasurement struct {
	FileName string
	Values   map[string]any
}

// Record is the per-stage output of the analyse phase (§3 AnalysisRecord).
// Records are append-only within a job: once inserted into a JobContext they
// must not be mutated.
type Record struct {
	ContractID          string
	StageID             string
	MetricsFromContract map[string]float64
	LimitsFromContract  map[string]float64
	Session             map[string]any
	Stems               []StemMeasurement
}

// NewRecord builds a Record seeded with a contract's metrics/limits, as the
// analyse() implementation of a stage is expected to do before filling in
// its own session/stems measurements.
func NewRecord(c contracts.Contract, session map[string]any, stems []StemMeasurement) Record {
	if session == nil {
		session = map[string]any{}
	}
	return Record{
		ContractID:          c.ID,
		StageID:             c.ID,
		MetricsFromContract: cloneFloatMap(c.Metrics),
		LimitsFromContract:  cloneFloatMap(c.Limits),
		Session:             session,
		Stems:               stems,
	}
}

func cloneFloatMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
