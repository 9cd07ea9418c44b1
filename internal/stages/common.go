// Package stages holds the concrete leaf implementations of the default
// contract roster shipped in internal/contracts/stages.json. Every stage
// here is a real, if intentionally simple, signal-processing routine: DC
// offset removal, RMS loudness, a one-pole filter pair, a hard-knee
// compressor, a tonal-balance EQ, and a peak/loudness limiter. None of them
// claim mastering-grade quality — they exist to exercise the runtime
// faithfully, not to replace a mastering engineer.
package stages

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/mixmaster-audio/pipeline/internal/audio"
	"github.com/mixmaster-audio/pipeline/internal/pipeline"
)

const silenceFloorDB = -96.0

// dbFromLinear converts a linear amplitude to dBFS, returning -inf at zero
// per the diff package's -inf handling (§4.4).
func dbFromLinear(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}

// linearFromDB is dbFromLinear's inverse.
func linearFromDB(db float64) float64 {
	if math.IsInf(db, -1) {
		return 0
	}
	return math.Pow(10, db/20)
}

// rms computes the root-mean-square of a sample slice.
func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range samples {
		sumSq += v * v
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

// peakAbs returns the maximum absolute sample value.
func peakAbs(samples []float64) float64 {
	var peak float64
	for _, v := range samples {
		av := v
		if av < 0 {
			av = -av
		}
		if av > peak {
			peak = av
		}
	}
	return peak
}

// metricOrDefault reads a named target from a contract's Metrics map,
// falling back to def when absent (contracts are not required to declare
// every metric a stage understands).
func metricOrDefault(metrics map[string]float64, key string, def float64) float64 {
	if v, ok := metrics[key]; ok {
		return v
	}
	return def
}

// limitOrDefault reads a named bound from a contract's Limits map, falling
// back to def when absent.
func limitOrDefault(limits map[string]float64, key string, def float64) float64 {
	if v, ok := limits[key]; ok {
		return v
	}
	return def
}

// sortedStemNames returns a job's stem names in a stable order, used
// everywhere a stage needs deterministic iteration (map iteration order is
// not stable in Go, and AnalysisRecord.Stems must be reproducible for the
// diff to be meaningful across runs).
func sortedStemNames(jc *pipeline.Context) []string {
	names := jc.StemNames()
	sort.Strings(names)
	return names
}

// forEachStem fans out fn across every stem concurrently, bounded by
// errgroup's SetLimit, matching the concurrency pattern the teacher uses
// for per-file work (internal/modules/learning/steps/ingest_chunks.go).
// Stages with genuinely independent per-stem work (no shared mutable state
// beyond the stem itself) use this instead of a sequential loop.
func forEachStem(ctx context.Context, jc *pipeline.Context, maxConcurrency int, fn func(ctx context.Context, s *audio.Stem) error) error {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)
	for _, name := range sortedStemNames(jc) {
		s := jc.Stems()[name]
		g.Go(func() error {
			return fn(gctx, s)
		})
	}
	return g.Wait()
}
