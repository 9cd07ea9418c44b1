package stages

import (
	"context"
	"math"

	"github.com/mixmaster-audio/pipeline/internal/analysis"
	"github.com/mixmaster-audio/pipeline/internal/audio"
	"github.com/mixmaster-audio/pipeline/internal/contracts"
	"github.com/mixmaster-audio/pipeline/internal/pipeline"
)

const (
	defaultHPFHz = 80.0
	defaultLPFHz = 18000.0
)

// StemHPFLPF runs a one-pole high-pass and one-pole low-pass filter across
// every stem, independently per channel, using cutoffs from the contract's
// metrics (falling back to sane defaults). Each stem's filtering is fully
// independent of every other stem, so this stage fans out across the
// worker pool like StemDCOffset.
type StemHPFLPF struct {
	MaxConcurrency int
	SampleRate     int // overrides jc.SampleRate when set, used by tests
}

func (s StemHPFLPF) Analyse(ctx context.Context, jc *pipeline.Context, c contracts.Contract) (analysis.Record, error) {
	names := sortedStemNames(jc)
	rows := make([]analysis.StemMeasurement, len(names))
	err := forEachStem(ctx, jc, s.MaxConcurrency, func(_ context.Context, stem *audio.Stem) error {
		idx := indexOf(names, stem.Name)
		rows[idx] = analysis.StemMeasurement{
			FileName: stem.Name,
			Values:   map[string]any{"rms": rms(stem.Samples)},
		}
		return nil
	})
	if err != nil {
		return analysis.Record{}, err
	}
	return analysis.NewRecord(c, map[string]any{
		"hpf_hz": hpfHz(c),
		"lpf_hz": lpfHz(c),
	}, rows), nil
}

func (s StemHPFLPF) Process(ctx context.Context, jc *pipeline.Context, c contracts.Contract, pre analysis.Record) error {
	sampleRate := s.SampleRate
	if sampleRate == 0 {
		sampleRate = jc.SampleRate
	}
	hpf := hpfHz(c)
	lpf := lpfHz(c)
	return forEachStem(ctx, jc, s.MaxConcurrency, func(_ context.Context, stem *audio.Stem) error {
		applyOnePoleHighPass(stem.Samples, int(stem.Channels), sampleRate, hpf)
		applyOnePoleLowPass(stem.Samples, int(stem.Channels), sampleRate, lpf)
		return nil
	})
}

func hpfHz(c contracts.Contract) float64 {
	return metricOrDefault(c.Metrics, "hpf_hz", defaultHPFHz)
}

func lpfHz(c contracts.Contract) float64 {
	return metricOrDefault(c.Metrics, "lpf_hz", defaultLPFHz)
}

// applyOnePoleHighPass runs y[n] = a*(y[n-1] + x[n] - x[n-1]) independently
// per channel, interleaved in place.
func applyOnePoleHighPass(samples []float64, channels, sampleRate int, cutoffHz float64) {
	if sampleRate <= 0 || cutoffHz <= 0 || channels <= 0 {
		return
	}
	rc := 1.0 / (2 * math.Pi * cutoffHz)
	dt := 1.0 / float64(sampleRate)
	a := rc / (rc + dt)

	frames := len(samples) / channels
	prevX := make([]float64, channels)
	prevY := make([]float64, channels)
	for f := 0; f < frames; f++ {
		for ch := 0; ch < channels; ch++ {
			i := f*channels + ch
			x := samples[i]
			y := a * (prevY[ch] + x - prevX[ch])
			samples[i] = y
			prevX[ch] = x
			prevY[ch] = y
		}
	}
}

// applyOnePoleLowPass runs y[n] = y[n-1] + a*(x[n] - y[n-1]) independently
// per channel, interleaved in place.
func applyOnePoleLowPass(samples []float64, channels, sampleRate int, cutoffHz float64) {
	if sampleRate <= 0 || cutoffHz <= 0 || channels <= 0 {
		return
	}
	dt := 1.0 / float64(sampleRate)
	rc := 1.0 / (2 * math.Pi * cutoffHz)
	a := dt / (rc + dt)

	frames := len(samples) / channels
	prevY := make([]float64, channels)
	for f := 0; f < frames; f++ {
		for ch := 0; ch < channels; ch++ {
			i := f*channels + ch
			x := samples[i]
			y := prevY[ch] + a*(x-prevY[ch])
			samples[i] = y
			prevY[ch] = y
		}
	}
}
