package stages

import (
	"context"

	"github.com/mixmaster-audio/pipeline/internal/analysis"
	"github.com/mixmaster-audio/pipeline/internal/contracts"
	"github.com/mixmaster-audio/pipeline/internal/pipeline"
)

const defaultTruePeakCeilingDBFS = -1.0

// MasterFinalLimits is the terminal mixdown-dsp stage: a brickwall peak
// limiter bringing the mixdown under the contract's true_peak_ceiling_dbfs
// metric. The gain reduction it's allowed to apply is itself bounded by
// max_gain_reduction_db, so a mix that's wildly hot is brought toward the
// ceiling rather than slammed onto it in one step; the write-time ±1.0
// sample clamp (§6) remains the absolute backstop regardless of what this
// stage does.
type MasterFinalLimits struct{}

func (MasterFinalLimits) Analyse(_ context.Context, jc *pipeline.Context, c contracts.Contract) (analysis.Record, error) {
	m := jc.Mixdown()
	peak := 0.0
	if m != nil {
		peak = peakAbs(m.Samples)
	}
	return analysis.NewRecord(c, map[string]any{
		"peak_db":                dbFromLinear(peak),
		"true_peak_ceiling_dbfs": truePeakCeilingDBFS(c),
	}, nil), nil
}

func (MasterFinalLimits) Process(_ context.Context, jc *pipeline.Context, c contracts.Contract, pre analysis.Record) error {
	m := jc.Mixdown()
	if m == nil || len(m.Samples) == 0 {
		return nil
	}
	peak := peakAbs(m.Samples)
	if peak == 0 {
		return nil
	}
	ceilingDB := truePeakCeilingDBFS(c)
	peakDB := dbFromLinear(peak)
	if peakDB <= ceilingDB {
		return nil
	}
	reductionDB := peakDB - ceilingDB
	if max := maxGainReductionDB(c); reductionDB > max {
		reductionDB = max
	}
	gain := linearFromDB(-reductionDB)
	for i := range m.Samples {
		m.Samples[i] *= gain
	}
	return nil
}

func truePeakCeilingDBFS(c contracts.Contract) float64 {
	return metricOrDefault(c.Metrics, "true_peak_ceiling_dbfs", defaultTruePeakCeilingDBFS)
}
