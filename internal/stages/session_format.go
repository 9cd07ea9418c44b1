package stages

import (
	"context"

	"github.com/mixmaster-audio/pipeline/internal/analysis"
	"github.com/mixmaster-audio/pipeline/internal/audio"
	"github.com/mixmaster-audio/pipeline/internal/contracts"
	"github.com/mixmaster-audio/pipeline/internal/pipeline"
)

// SessionFormat is the first structural stage: it surveys every stem's
// channel layout and frame count, then coerces any mono stem to stereo so
// every later stage can assume I1 (uniform stereo layout) holds. This is
// the runtime's replacement for whatever bespoke session-parsing a DAW
// project import would otherwise do (§4.3/supplemented scope).
type SessionFormat struct{}

func (SessionFormat) Analyse(_ context.Context, jc *pipeline.Context, c contracts.Contract) (analysis.Record, error) {
	stemCount := 0
	monoCount := 0
	var stemRows []analysis.StemMeasurement
	for _, name := range sortedStemNames(jc) {
		s := jc.Stems()[name]
		stemCount++
		if s.Channels == audio.Mono {
			monoCount++
		}
		stemRows = append(stemRows, analysis.StemMeasurement{
			FileName: name,
			Values: map[string]any{
				"channels": float64(s.Channels),
				"frames":   float64(s.Frames()),
			},
		})
	}
	session := map[string]any{
		"stem_count":      float64(stemCount),
		"mono_stem_count": float64(monoCount),
		"sample_rate":     float64(jc.SampleRate),
	}
	return analysis.NewRecord(c, session, stemRows), nil
}

func (SessionFormat) Process(_ context.Context, jc *pipeline.Context, c contracts.Contract, pre analysis.Record) error {
	for _, s := range jc.Stems() {
		if s.Channels != audio.Stereo {
			s.Samples = audio.CoerceChannels(s.Samples, s.Channels, audio.Stereo)
			s.Channels = audio.Stereo
		}
	}
	jc.Metadata()["sample_rate"] = jc.SampleRate
	jc.Metadata()["stem_count"] = len(jc.Stems())
	jc.RefreshMixdown()
	return nil
}
