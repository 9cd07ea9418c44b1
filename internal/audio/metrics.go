package audio

import (
	"math"
	"sort"
)

// FinalMetrics is the full measurement set the finished report and the
// terminal status blob carry for a job's mixdown: loudness, true peak,
// loudness range, a tempo estimate, stereo balance, and phase correlation.
// Like the rest of this runtime's signal processing, these are stub-grade
// measurements computed from the actual samples rather than a real
// broadcast-grade LUFS/LRA/tempo implementation (which would need K-weighted
// filtering, onset detection, and a beat tracker this runtime does not
// carry) — real mastering analysis is a black-box leaf this package does
// not own.
type FinalMetrics struct {
	LUFS                  float64
	TruePeakDBFS          float64
	LRA                   float64
	TempoBPM              float64
	ChannelLoudnessDiffDB float64
	Correlation           float64
}

// ComputeFinalMetrics derives FinalMetrics from a finished stereo mixdown.
func ComputeFinalMetrics(m *Mixdown, sampleRate int) FinalMetrics {
	if m == nil || len(m.Samples) == 0 || sampleRate <= 0 {
		return FinalMetrics{LUFS: math.Inf(-1), TruePeakDBFS: math.Inf(-1)}
	}
	left, right := splitChannels(m.Samples)
	return FinalMetrics{
		LUFS:                  integratedLoudness(m.Samples),
		TruePeakDBFS:          dbFromLinearAudio(m.Peak()),
		LRA:                   loudnessRange(m.Samples, sampleRate),
		TempoBPM:              estimateTempo(left, right, sampleRate),
		ChannelLoudnessDiffDB: channelLoudnessDiff(left, right),
		Correlation:           stereoCorrelation(left, right),
	}
}

func dbFromLinearAudio(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}

func splitChannels(interleaved []float64) (left, right []float64) {
	frames := len(interleaved) / 2
	left = make([]float64, frames)
	right = make([]float64, frames)
	for i := 0; i < frames; i++ {
		left[i] = interleaved[2*i]
		right[i] = interleaved[2*i+1]
	}
	return left, right
}

func meanSquare(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return sum / float64(len(samples))
}

func rmsOf(samples []float64) float64 {
	return math.Sqrt(meanSquare(samples))
}

// integratedLoudness approximates LUFS with an un-weighted mean-square
// loudness formula (the -0.691 offset matches the ITU-R BS.1770 constant;
// the K-weighting pre-filter itself is omitted).
func integratedLoudness(samples []float64) float64 {
	ms := meanSquare(samples)
	if ms <= 0 {
		return math.Inf(-1)
	}
	return -0.691 + 10*math.Log10(ms)
}

// loudnessRange buckets the mixdown into non-overlapping 3-second blocks,
// computes each block's loudness, and returns the spread between the 95th
// and 10th percentile block loudness — a coarse stand-in for EBU R128's LRA.
func loudnessRange(samples []float64, sampleRate int) float64 {
	blockFrames := sampleRate * 3
	blockSamples := blockFrames * 2
	if blockSamples <= 0 || len(samples) < blockSamples*2 {
		return 0
	}
	var loudnesses []float64
	for start := 0; start+blockSamples <= len(samples); start += blockSamples {
		ms := meanSquare(samples[start : start+blockSamples])
		if ms <= 0 {
			continue
		}
		loudnesses = append(loudnesses, -0.691+10*math.Log10(ms))
	}
	if len(loudnesses) < 2 {
		return 0
	}
	sort.Float64s(loudnesses)
	return percentile(loudnesses, 0.95) - percentile(loudnesses, 0.10)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func channelLoudnessDiff(left, right []float64) float64 {
	rl, rr := rmsOf(left), rmsOf(right)
	if rl == 0 && rr == 0 {
		return 0
	}
	return dbFromLinearAudio(rl) - dbFromLinearAudio(rr)
}

// stereoCorrelation is the Pearson correlation coefficient between the left
// and right channels: 1.0 is mono-compatible, 0 is uncorrelated, -1.0 is
// fully out of phase.
func stereoCorrelation(left, right []float64) float64 {
	n := len(left)
	if n == 0 || n != len(right) {
		return 0
	}
	var meanL, meanR float64
	for i := 0; i < n; i++ {
		meanL += left[i]
		meanR += right[i]
	}
	meanL /= float64(n)
	meanR /= float64(n)
	var num, denomL, denomR float64
	for i := 0; i < n; i++ {
		dl := left[i] - meanL
		dr := right[i] - meanR
		num += dl * dr
		denomL += dl * dl
		denomR += dr * dr
	}
	if denomL == 0 || denomR == 0 {
		return 0
	}
	return num / math.Sqrt(denomL*denomR)
}

// estimateTempo derives a rough BPM estimate via autocorrelation of the
// mixdown's rectified, downsampled amplitude envelope, searching lags that
// correspond to 60-200 BPM. This is an onset-strength proxy, not a real beat
// tracker: it is stable on a steady pulse and unreliable on rubato or
// percussion-free material, which is an acceptable approximation for a
// report field rather than a mastering decision.
func estimateTempo(left, right []float64, sampleRate int) float64 {
	n := len(left)
	if n == 0 || sampleRate <= 0 {
		return 0
	}
	mono := make([]float64, n)
	for i := range mono {
		v := left[i]
		if i < len(right) {
			v = (v + right[i]) / 2
		}
		if v < 0 {
			v = -v
		}
		mono[i] = v
	}

	hop := sampleRate / 100
	if hop < 1 {
		hop = 1
	}
	var envelope []float64
	for start := 0; start < len(mono); start += hop {
		end := start + hop
		if end > len(mono) {
			end = len(mono)
		}
		envelope = append(envelope, meanAbs(mono[start:end]))
	}
	if len(envelope) < 8 {
		return 0
	}

	envRate := float64(sampleRate) / float64(hop)
	minLag := int(envRate * 60.0 / 200.0)
	maxLag := int(envRate * 60.0 / 60.0)
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(envelope) {
		maxLag = len(envelope) - 1
	}
	if maxLag <= minLag {
		return 0
	}

	bestLag := 0
	bestScore := -math.MaxFloat64
	for lag := minLag; lag <= maxLag; lag++ {
		score := autocorrAt(envelope, lag)
		if score > bestScore {
			bestScore = score
			bestLag = lag
		}
	}
	if bestLag == 0 {
		return 0
	}
	return 60.0 * envRate / float64(bestLag)
}

func autocorrAt(series []float64, lag int) float64 {
	n := len(series) - lag
	if n <= 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += series[i] * series[i+lag]
	}
	return sum / float64(n)
}

func meanAbs(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
