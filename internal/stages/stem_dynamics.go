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
	defaultThresholdDBFS      = -18.0
	defaultRatio              = 3.0
	defaultMaxGainReductionDB = 12.0
)

// StemDynamics is a feed-forward, sample-by-sample hard-knee compressor
// applied independently to each stem (no lookahead or envelope smoothing —
// a real dynamics stage would add both; this is intentionally the simplest
// compressor that still behaves like one: above threshold, gain reduction
// scales with the configured ratio).
type StemDynamics struct {
	MaxConcurrency int
}

func (s StemDynamics) Analyse(ctx context.Context, jc *pipeline.Context, c contracts.Contract) (analysis.Record, error) {
	names := sortedStemNames(jc)
	rows := make([]analysis.StemMeasurement, len(names))
	err := forEachStem(ctx, jc, s.MaxConcurrency, func(_ context.Context, stem *audio.Stem) error {
		idx := indexOf(names, stem.Name)
		rows[idx] = analysis.StemMeasurement{
			FileName: stem.Name,
			Values:   map[string]any{"peak_db": dbFromLinear(peakAbs(stem.Samples))},
		}
		return nil
	})
	if err != nil {
		return analysis.Record{}, err
	}
	return analysis.NewRecord(c, map[string]any{
		"threshold_dbfs": thresholdDBFS(c),
		"ratio":          ratio(c),
	}, rows), nil
}

func (s StemDynamics) Process(ctx context.Context, jc *pipeline.Context, c contracts.Contract, pre analysis.Record) error {
	threshold := linearFromDB(thresholdDBFS(c))
	ratioVal := ratio(c)
	maxReduction := maxGainReductionDB(c)
	return forEachStem(ctx, jc, s.MaxConcurrency, func(_ context.Context, stem *audio.Stem) error {
		for i, v := range stem.Samples {
			stem.Samples[i] = compressSample(v, threshold, ratioVal, maxReduction)
		}
		return nil
	})
}

// compressSample applies gain reduction above threshold at the given
// ratio, preserving sign, clamped so no single sample loses more than
// maxReductionDB relative to its unprocessed level.
func compressSample(v, threshold, ratioVal, maxReductionDB float64) float64 {
	av := math.Abs(v)
	if av <= threshold || av == 0 {
		return v
	}
	excessDB := dbFromLinear(av) - dbFromLinear(threshold)
	reducedDB := excessDB / ratioVal
	reductionDB := excessDB - reducedDB
	if reductionDB > maxReductionDB {
		reductionDB = maxReductionDB
	}
	newAbs := linearFromDB(dbFromLinear(av) - reductionDB)
	if v < 0 {
		return -newAbs
	}
	return newAbs
}

func thresholdDBFS(c contracts.Contract) float64 {
	return metricOrDefault(c.Metrics, "threshold_dbfs", defaultThresholdDBFS)
}

func ratio(c contracts.Contract) float64 {
	v := metricOrDefault(c.Metrics, "ratio", defaultRatio)
	if v <= 0 {
		return defaultRatio
	}
	return v
}

func maxGainReductionDB(c contracts.Contract) float64 {
	return limitOrDefault(c.Limits, "max_gain_reduction_db", defaultMaxGainReductionDB)
}
