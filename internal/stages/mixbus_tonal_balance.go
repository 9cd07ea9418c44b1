package stages

import (
	"context"

	"github.com/mixmaster-audio/pipeline/internal/analysis"
	"github.com/mixmaster-audio/pipeline/internal/contracts"
	"github.com/mixmaster-audio/pipeline/internal/pipeline"
)

const (
	tonalLowBandHz     = 200.0
	tonalHighBandHz    = 4000.0
	defaultLowBandDB   = 0.0
	defaultHighBandDB  = 0.0
	defaultMaxBandGain = 6.0
)

// MixbusTonalBalance is a mixdown-dsp stage: it compares low-band energy
// (below 200Hz) against high-band energy (above 4kHz) and, if the tilt
// deviates from the contract's target, nudges the balance by blending in a
// one-pole low-passed or high-passed copy of the mixdown. This is a coarse
// stand-in for a real tilt EQ, but it is a real filter operating on real
// measured energy, not a canned multiplier.
type MixbusTonalBalance struct {
	SampleRate int // overrides jc.SampleRate when set, used by tests
}

func (m MixbusTonalBalance) Analyse(_ context.Context, jc *pipeline.Context, c contracts.Contract) (analysis.Record, error) {
	mix := jc.Mixdown()
	if mix == nil || len(mix.Samples) == 0 {
		return analysis.NewRecord(c, map[string]any{"tilt_db": 0.0}, nil), nil
	}
	low, high := tiltBands(mix.Samples, int(mix.Channels), m.sampleRate(jc))
	tilt := dbFromLinear(rms(high)) - dbFromLinear(rms(low))
	return analysis.NewRecord(c, map[string]any{
		"tilt_db": tilt,
		"low_db":  lowBandTargetDB(c),
		"high_db": highBandTargetDB(c),
	}, nil), nil
}

func (m MixbusTonalBalance) Process(_ context.Context, jc *pipeline.Context, c contracts.Contract, pre analysis.Record) error {
	mix := jc.Mixdown()
	if mix == nil || len(mix.Samples) == 0 {
		return nil
	}
	sampleRate := m.sampleRate(jc)
	low, high := tiltBands(mix.Samples, int(mix.Channels), sampleRate)
	tilt := dbFromLinear(rms(high)) - dbFromLinear(rms(low))
	target := highBandTargetDB(c) - lowBandTargetDB(c)
	errDB := target - tilt
	if errDB == 0 {
		return nil
	}

	maxBlend := maxBandGainDB(c) / 24.0 // 24dB of tilt error maps to full blend strength
	blend := errDB / 24.0
	if blend > maxBlend {
		blend = maxBlend
	}
	if blend < -maxBlend {
		blend = -maxBlend
	}

	for i := range mix.Samples {
		if blend >= 0 {
			// need more high end: blend toward the high-band copy
			mix.Samples[i] += blend * (high[i] - mix.Samples[i])
		} else {
			// need more low end: blend toward the low-band copy
			mix.Samples[i] += (-blend) * (low[i] - mix.Samples[i])
		}
	}
	return nil
}

func (m MixbusTonalBalance) sampleRate(jc *pipeline.Context) int {
	if m.SampleRate != 0 {
		return m.SampleRate
	}
	return jc.SampleRate
}

// tiltBands returns independent low-passed and high-passed copies of
// samples, used both to measure and to correct tonal balance.
func tiltBands(samples []float64, channels, sampleRate int) (low, high []float64) {
	low = append([]float64(nil), samples...)
	high = append([]float64(nil), samples...)
	applyOnePoleLowPass(low, channels, sampleRate, tonalLowBandHz)
	applyOnePoleHighPass(high, channels, sampleRate, tonalHighBandHz)
	return low, high
}

func lowBandTargetDB(c contracts.Contract) float64 {
	return metricOrDefault(c.Metrics, "low_db", defaultLowBandDB)
}

func highBandTargetDB(c contracts.Contract) float64 {
	return metricOrDefault(c.Metrics, "high_db", defaultHighBandDB)
}

func maxBandGainDB(c contracts.Contract) float64 {
	return limitOrDefault(c.Limits, "max_band_gain_db", defaultMaxBandGain)
}
