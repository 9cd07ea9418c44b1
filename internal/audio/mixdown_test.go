package audio

import "testing"

func TestRefreshPadsShorterStemAtTail(t *testing.T) {
	a := &Stem{Name: "a.wav", Channels: Mono, Samples: []float64{1, 1, 1, 1}}
	b := &Stem{Name: "b.wav", Channels: Mono, Samples: []float64{1, 1}}

	mix := Refresh([]*Stem{a, b})
	if mix.Frames() != 4 {
		t.Fatalf("expected 4 frames, got %d", mix.Frames())
	}
	// Frames 0,1: both stems contribute -> 2.0 per channel.
	if mix.Samples[0] != 2 || mix.Samples[1] != 2 {
		t.Fatalf("frame 0 = %v, want 2,2", mix.Samples[:2])
	}
	// Frames 2,3: only `a` contributes (b zero-padded at the tail) -> 1.0.
	if mix.Samples[4] != 1 || mix.Samples[5] != 1 {
		t.Fatalf("frame 2 = %v, want 1,1", mix.Samples[4:6])
	}
}

func TestRefreshMonoDuplicatedToStereo(t *testing.T) {
	a := &Stem{Name: "a.wav", Channels: Mono, Samples: []float64{0.5}}
	mix := Refresh([]*Stem{a})
	if mix.Channels != Stereo {
		t.Fatalf("expected stereo mixdown")
	}
	if mix.Samples[0] != 0.5 || mix.Samples[1] != 0.5 {
		t.Fatalf("expected duplicated channels, got %v", mix.Samples)
	}
}

func TestRefreshEmptyStemsIsNil(t *testing.T) {
	if Refresh(nil) != nil {
		t.Fatalf("expected nil mixdown for zero stems")
	}
}

func TestClipToUnity(t *testing.T) {
	m := &Mixdown{Channels: Stereo, Samples: []float64{1.5, -1.5, 0.3, -0.3}}
	m.ClipToUnity()
	want := []float64{1.0, -1.0, 0.3, -0.3}
	for i := range want {
		if m.Samples[i] != want[i] {
			t.Fatalf("sample %d = %v, want %v", i, m.Samples[i], want[i])
		}
	}
}

func TestCoerceChannelsStereoToMonoAverages(t *testing.T) {
	out := CoerceChannels([]float64{1, -1, 0.5, 0.5}, Stereo, Mono)
	if len(out) != 2 || out[0] != 0 || out[1] != 0.5 {
		t.Fatalf("unexpected coercion result: %v", out)
	}
}
