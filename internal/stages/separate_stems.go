package stages

import (
	"context"
	"fmt"

	"github.com/mixmaster-audio/pipeline/internal/analysis"
	"github.com/mixmaster-audio/pipeline/internal/audio"
	"github.com/mixmaster-audio/pipeline/internal/contracts"
	"github.com/mixmaster-audio/pipeline/internal/pipeline"
)

// SeparateStems is the second structural stage. In a full production
// system this is where source separation would run; here the job always
// arrives with its stems already split, so this stage's real job is to
// enforce the uniqueness invariant a separation step would otherwise
// guarantee by construction (stems are keyed by a unique, non-empty name)
// and to report each stem's presence in the mix.
type SeparateStems struct{}

func (SeparateStems) Analyse(_ context.Context, jc *pipeline.Context, c contracts.Contract) (analysis.Record, error) {
	mixRMS := 0.0
	if m := jc.Mixdown(); m != nil {
		mixRMS = rms(m.Samples)
	}
	var stemRows []analysis.StemMeasurement
	for _, name := range sortedStemNames(jc) {
		s := jc.Stems()[name]
		presence := 0.0
		if mixRMS > 0 {
			presence = rms(s.Samples) / mixRMS
		}
		stemRows = append(stemRows, analysis.StemMeasurement{
			FileName: name,
			Values:   map[string]any{"presence_ratio": presence},
		})
	}
	return analysis.NewRecord(c, map[string]any{"mix_rms": mixRMS}, stemRows), nil
}

func (SeparateStems) Process(_ context.Context, jc *pipeline.Context, c contracts.Contract, pre analysis.Record) error {
	seen := map[string]int{}
	stems := jc.Stems()

	// Build a deterministic rename plan first (iterating a map directly
	// would make collision resolution order-dependent), then apply it.
	names := sortedStemNames(jc)
	plan := make(map[string]string, len(names))
	for _, name := range names {
		key := name
		if key == "" {
			key = "stem"
		}
		seen[key]++
		if seen[key] > 1 {
			key = fmt.Sprintf("%s_%d", key, seen[key]-1)
		}
		plan[name] = key
	}

	changed := false
	newStems := make([]*audio.Stem, 0, len(stems))
	for _, name := range names {
		s := stems[name]
		target := plan[name]
		if target != s.Name {
			s.Name = target
			changed = true
		}
		newStems = append(newStems, s)
	}
	if changed {
		jc.LoadStems(newStems)
		jc.RefreshMixdown()
	}
	return nil
}
