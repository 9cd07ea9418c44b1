package audio

// Mixdown is the current stereo sum of all active stems. It is always
// two-channel once it exists (I3).
type Mixdown struct {
	Channels Channels
	Samples  []float64
}

// Frames returns the number of stereo frames in the mixdown.
func (m *Mixdown) Frames() int {
	if m == nil {
		return 0
	}
	return len(m.Samples) / 2
}

// Refresh recomputes a Mixdown as the time-aligned sum of the given stems,
// padded with zeros to the longest stem, with mono stems duplicated to both
// channels before summing (§4.2 refresh_mixdown). It is a pure function of
// its inputs: the caller (JobContext) owns persisting the result.
//
// Returns nil if stems is empty — ingest/orchestrator callers are expected
// to have already rejected a zero-stem job (InputMissing) before calling
// this for the first time.
func Refresh(stems []*Stem) *Mixdown {
	if len(stems) == 0 {
		return nil
	}
	maxFrames := 0
	for _, s := range stems {
		if f := s.Frames(); f > maxFrames {
			maxFrames = f
		}
	}
	out := make([]float64, maxFrames*2)
	for _, s := range stems {
		stereo := s.Samples
		if s.Channels == Mono {
			stereo = CoerceChannels(s.Samples, Mono, Stereo)
		}
		frames := len(stereo) / 2
		for i := 0; i < frames; i++ {
			out[2*i] += stereo[2*i]
			out[2*i+1] += stereo[2*i+1]
		}
	}
	return &Mixdown{Channels: Stereo, Samples: out}
}

// Peak returns the maximum absolute sample value across both channels, 0 for
// an empty/nil mixdown.
func (m *Mixdown) Peak() float64 {
	var peak float64
	if m == nil {
		return 0
	}
	for _, v := range m.Samples {
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

// ClipToUnity hard-clips every sample to [-1.0, 1.0] in place, matching the
// "Peak clipped at ±1.0 at write time" rule for full_song.wav (§6).
func (m *Mixdown) ClipToUnity() {
	if m == nil {
		return
	}
	for i, v := range m.Samples {
		if v > 1.0 {
			m.Samples[i] = 1.0
		} else if v < -1.0 {
			m.Samples[i] = -1.0
		}
	}
}
