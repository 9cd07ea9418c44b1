package stages

import (
	"context"

	"github.com/mixmaster-audio/pipeline/internal/analysis"
	"github.com/mixmaster-audio/pipeline/internal/contracts"
	"github.com/mixmaster-audio/pipeline/internal/pipeline"
)

const (
	defaultTargetPeakDBFS = -6.0
	defaultMaxGainDB      = 12.0
)

// MixbusHeadroom is a mixdown-dsp stage: it measures the current mixdown's
// peak and, if it exceeds the contract's target_peak_dbfs metric, applies a
// single gain-reduction pass directly to the mixdown buffer so every
// downstream stage operates with consistent headroom (§4.3: mixdown-dsp
// stages mutate the mixdown in place, never the stems). The correction is
// itself capped by the contract's max_gain_db limit, so a pathologically
// hot mix is brought toward target rather than slammed there in one step.
type MixbusHeadroom struct{}

func (MixbusHeadroom) Analyse(_ context.Context, jc *pipeline.Context, c contracts.Contract) (analysis.Record, error) {
	m := jc.Mixdown()
	peak := 0.0
	if m != nil {
		peak = peakAbs(m.Samples)
	}
	return analysis.NewRecord(c, map[string]any{
		"peak_db":          dbFromLinear(peak),
		"target_peak_dbfs": targetPeakDBFS(c),
	}, nil), nil
}

func (MixbusHeadroom) Process(_ context.Context, jc *pipeline.Context, c contracts.Contract, pre analysis.Record) error {
	m := jc.Mixdown()
	if m == nil || len(m.Samples) == 0 {
		return nil
	}
	peak := peakAbs(m.Samples)
	if peak == 0 {
		return nil
	}
	target := linearFromDB(targetPeakDBFS(c))
	if peak <= target {
		return nil
	}
	gainDB := targetPeakDBFS(c) - dbFromLinear(peak)
	if maxGain := maxGainDB(c); -gainDB > maxGain {
		gainDB = -maxGain
	}
	gain := linearFromDB(gainDB)
	for i := range m.Samples {
		m.Samples[i] *= gain
	}
	return nil
}

func targetPeakDBFS(c contracts.Contract) float64 {
	return metricOrDefault(c.Metrics, "target_peak_dbfs", defaultTargetPeakDBFS)
}

func maxGainDB(c contracts.Contract) float64 {
	return limitOrDefault(c.Limits, "max_gain_db", defaultMaxGainDB)
}
