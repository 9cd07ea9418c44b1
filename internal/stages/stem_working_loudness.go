package stages

import (
	"context"
	"math"

	"github.com/mixmaster-audio/pipeline/internal/analysis"
	"github.com/mixmaster-audio/pipeline/internal/audio"
	"github.com/mixmaster-audio/pipeline/internal/contracts"
	"github.com/mixmaster-audio/pipeline/internal/pipeline"
)

// StemWorkingLoudness is analysis-only: it reports each stem's RMS loudness
// in dBFS, plus the loudest stem's value as a session summary, giving
// downstream stages (mixbus_headroom, stem_dynamics) a stable reference
// point. It never mutates anything (§4.3).
type StemWorkingLoudness struct {
	MaxConcurrency int
}

func (s StemWorkingLoudness) Analyse(ctx context.Context, jc *pipeline.Context, c contracts.Contract) (analysis.Record, error) {
	names := sortedStemNames(jc)
	rows := make([]analysis.StemMeasurement, len(names))
	err := forEachStem(ctx, jc, s.MaxConcurrency, func(_ context.Context, stem *audio.Stem) error {
		idx := indexOf(names, stem.Name)
		rows[idx] = analysis.StemMeasurement{
			FileName: stem.Name,
			Values:   map[string]any{"loudness_db": dbFromLinear(rms(stem.Samples))},
		}
		return nil
	})
	if err != nil {
		return analysis.Record{}, err
	}

	loudest := math.Inf(-1)
	for _, row := range rows {
		if v, ok := row.Values["loudness_db"].(float64); ok && v > loudest {
			loudest = v
		}
	}
	return analysis.NewRecord(c, map[string]any{"loudest_stem_db": loudest}, rows), nil
}

func (StemWorkingLoudness) Process(context.Context, *pipeline.Context, contracts.Contract, analysis.Record) error {
	return nil
}
