package stages

import (
	"context"
	"math"

	"github.com/mixmaster-audio/pipeline/internal/analysis"
	"github.com/mixmaster-audio/pipeline/internal/contracts"
	"github.com/mixmaster-audio/pipeline/internal/pipeline"
)

const (
	defaultDriveAmount = 0.15
	defaultMaxDrive    = 0.5
	driveCurveScale    = 6.0
)

// MixbusColor is a mixdown-dsp stage applying gentle tanh saturation to the
// mixdown — the "character" pass a mastering chain uses to add perceived
// warmth before final limiting. The contract's drive metric is a 0-1 wet
// amount (0 is transparent); it is mapped onto the tanh curve's drive
// coefficient so a small amount still produces an audible, if subtle,
// effect, and clamped to the contract's max_drive limit so a misconfigured
// contract can't saturate the mix into audible distortion.
type MixbusColor struct{}

func (MixbusColor) Analyse(_ context.Context, jc *pipeline.Context, c contracts.Contract) (analysis.Record, error) {
	m := jc.Mixdown()
	peak := 0.0
	if m != nil {
		peak = peakAbs(m.Samples)
	}
	return analysis.NewRecord(c, map[string]any{
		"peak_db": dbFromLinear(peak),
		"drive":   driveAmount(c),
	}, nil), nil
}

func (MixbusColor) Process(_ context.Context, jc *pipeline.Context, c contracts.Contract, pre analysis.Record) error {
	m := jc.Mixdown()
	if m == nil {
		return nil
	}
	amount := driveAmount(c)
	if amount <= 0 {
		return nil
	}
	d := 1.0 + amount*driveCurveScale
	for i, v := range m.Samples {
		m.Samples[i] = math.Tanh(v*d) / math.Tanh(d)
	}
	return nil
}

func driveAmount(c contracts.Contract) float64 {
	amount := metricOrDefault(c.Metrics, "drive", defaultDriveAmount)
	if max := limitOrDefault(c.Limits, "max_drive", defaultMaxDrive); amount > max {
		amount = max
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}
