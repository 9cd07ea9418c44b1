package stages

import (
	"context"

	"github.com/mixmaster-audio/pipeline/internal/analysis"
	"github.com/mixmaster-audio/pipeline/internal/contracts"
	"github.com/mixmaster-audio/pipeline/internal/pipeline"
)

// chromaticKeys are the twelve pitch classes key_detection buckets a
// mixdown into. Real key detection needs chroma/pitch-class analysis
// against a reference template (Krumhansl-Schmuckler or similar); this
// stage approximates it with a zero-crossing-rate heuristic, which is
// enough to exercise the contract's shape without pulling in an FFT
// dependency no other part of this runtime needs.
var chromaticKeys = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// KeyDetection is analysis-only: it estimates the mixdown's musical key
// from its zero-crossing rate, a cheap proxy for dominant pitch that keeps
// the estimate deterministic and stable across repeated runs on the same
// input (§4.3 analysis-only invariant: no mutation, ever).
type KeyDetection struct{}

func (KeyDetection) Analyse(_ context.Context, jc *pipeline.Context, c contracts.Contract) (analysis.Record, error) {
	m := jc.Mixdown()
	if m == nil || len(m.Samples) == 0 || dbFromLinear(peakAbs(m.Samples)) < silenceFloorDB {
		return analysis.NewRecord(c, map[string]any{"key": "unknown", "scale": "unknown", "confidence": 0.0}, nil), nil
	}
	zcr := zeroCrossingRate(m.Samples)
	idx := int(zcr*1000) % len(chromaticKeys)
	if idx < 0 {
		idx += len(chromaticKeys)
	}
	confidence := 1.0 - zcr
	if confidence < 0 {
		confidence = 0
	}
	scale := "major"
	if confidence < 0.5 {
		scale = "minor"
	}
	return analysis.NewRecord(c, map[string]any{
		"key":        chromaticKeys[idx],
		"scale":      scale,
		"confidence": confidence,
	}, nil), nil
}

func (KeyDetection) Process(context.Context, *pipeline.Context, contracts.Contract, analysis.Record) error {
	return nil
}

func zeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}
