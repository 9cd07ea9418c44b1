package stages

import (
	"context"

	"github.com/mixmaster-audio/pipeline/internal/analysis"
	"github.com/mixmaster-audio/pipeline/internal/audio"
	"github.com/mixmaster-audio/pipeline/internal/contracts"
	"github.com/mixmaster-audio/pipeline/internal/pipeline"
)

// StemDCOffset measures and removes each stem's DC offset (the mean sample
// value, which for a well-recorded signal should sit at zero). Left
// uncorrected, DC offset eats into headroom and can thump on fades. Each
// stem is independent, so this is the stems-dsp stage that uses the
// bounded per-stem worker pool (§domain stack: golang.org/x/sync/errgroup).
type StemDCOffset struct {
	MaxConcurrency int
}

func (s StemDCOffset) Analyse(ctx context.Context, jc *pipeline.Context, c contracts.Contract) (analysis.Record, error) {
	rows := make([]analysis.StemMeasurement, len(jc.StemNames()))
	names := sortedStemNames(jc)
	err := forEachStem(ctx, jc, s.MaxConcurrency, func(_ context.Context, stem *audio.Stem) error {
		idx := indexOf(names, stem.Name)
		rows[idx] = analysis.StemMeasurement{
			FileName: stem.Name,
			Values:   map[string]any{"dc_offset": mean(stem.Samples)},
		}
		return nil
	})
	if err != nil {
		return analysis.Record{}, err
	}
	return analysis.NewRecord(c, nil, rows), nil
}

func (s StemDCOffset) Process(ctx context.Context, jc *pipeline.Context, c contracts.Contract, pre analysis.Record) error {
	return forEachStem(ctx, jc, s.MaxConcurrency, func(_ context.Context, stem *audio.Stem) error {
		offset := mean(stem.Samples)
		if offset == 0 {
			return nil
		}
		for i := range stem.Samples {
			stem.Samples[i] -= offset
		}
		return nil
	})
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
