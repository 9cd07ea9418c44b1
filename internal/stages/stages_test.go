package stages

import (
	"context"
	"math"
	"testing"

	"github.com/mixmaster-audio/pipeline/internal/analysis"
	"github.com/mixmaster-audio/pipeline/internal/audio"
	"github.com/mixmaster-audio/pipeline/internal/contracts"
	"github.com/mixmaster-audio/pipeline/internal/pipeline"
)

func contractFor(id string, kind contracts.Kind, metrics, limits map[string]float64) contracts.Contract {
	return contracts.Contract{ID: id, Kind: kind, Metrics: metrics, Limits: limits}
}

func newJobContext(t *testing.T, sampleRate int, stems ...*audio.Stem) *pipeline.Context {
	t.Helper()
	jc := pipeline.NewContext("job-1", sampleRate)
	jc.LoadStems(stems)
	jc.RefreshMixdown()
	return jc
}

func sineStem(name string, frames int, freq float64, sampleRate int, amp float64) *audio.Stem {
	samples := make([]float64, frames*2)
	for i := 0; i < frames; i++ {
		v := amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		samples[2*i] = v
		samples[2*i+1] = v
	}
	return &audio.Stem{Name: name, Channels: audio.Stereo, Samples: samples}
}

func TestSessionFormatCoercesMonoToStereo(t *testing.T) {
	mono := &audio.Stem{Name: "vox", Channels: audio.Mono, Samples: []float64{0.1, 0.2, 0.3}}
	jc := newJobContext(t, 44100, mono)
	c := contractFor("session_format", contracts.KindStructural, nil, nil)

	pre, err := SessionFormat{}.Analyse(context.Background(), jc, c)
	if err != nil {
		t.Fatalf("Analyse: %v", err)
	}
	if pre.Session["mono_stem_count"].(float64) != 1 {
		t.Fatalf("expected 1 mono stem pre-process, got %v", pre.Session["mono_stem_count"])
	}

	if err := (SessionFormat{}).Process(context.Background(), jc, c, pre); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if jc.Stems()["vox"].Channels != audio.Stereo {
		t.Fatalf("expected vox coerced to stereo")
	}
	if got := len(jc.Stems()["vox"].Samples); got != 6 {
		t.Fatalf("expected 6 interleaved samples after stereo coercion, got %d", got)
	}
}

func TestSeparateStemsDedupesEmptyAndDuplicateNames(t *testing.T) {
	a := &audio.Stem{Name: "", Channels: audio.Stereo, Samples: []float64{0.1, 0.1}}
	b := &audio.Stem{Name: "", Channels: audio.Stereo, Samples: []float64{0.2, 0.2}}
	jc := newJobContext(t, 44100, a, b)
	c := contractFor("separate_stems", contracts.KindStructural, nil, nil)

	pre, err := SeparateStems{}.Analyse(context.Background(), jc, c)
	if err != nil {
		t.Fatalf("Analyse: %v", err)
	}
	if err := (SeparateStems{}).Process(context.Background(), jc, c, pre); err != nil {
		t.Fatalf("Process: %v", err)
	}

	names := jc.StemNames()
	if len(names) != 2 {
		t.Fatalf("expected 2 distinct stem names after dedup, got %v", names)
	}
	seen := map[string]bool{}
	for _, n := range names {
		if seen[n] {
			t.Fatalf("duplicate stem name survived dedup: %q", n)
		}
		seen[n] = true
	}
}

func TestStemDCOffsetRemovesMean(t *testing.T) {
	s := &audio.Stem{Name: "bass", Channels: audio.Stereo, Samples: []float64{0.5, 0.5, 0.7, 0.7, 0.3, 0.3}}
	jc := newJobContext(t, 44100, s)
	c := contractFor("stem_dc_offset", contracts.KindStemsDSP, map[string]float64{"target_dc_offset": 0}, map[string]float64{"max_gain_db": 1.0})

	if err := (StemDCOffset{}).Process(context.Background(), jc, c, analysis.Record{}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := mean(jc.Stems()["bass"].Samples); math.Abs(got) > 1e-9 {
		t.Fatalf("expected near-zero mean after DC offset correction, got %v", got)
	}
}

func TestStemWorkingLoudnessIsAnalysisOnly(t *testing.T) {
	s := sineStem("lead", 256, 440, 44100, 0.5)
	jc := newJobContext(t, 44100, s)
	c := contractFor("stem_working_loudness", contracts.KindAnalysisOnly, nil, nil)

	before := append([]float64(nil), jc.Stems()["lead"].Samples...)
	rec, err := StemWorkingLoudness{}.Analyse(context.Background(), jc, c)
	if err != nil {
		t.Fatalf("Analyse: %v", err)
	}
	if err := (StemWorkingLoudness{}).Process(context.Background(), jc, c, rec); err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i, v := range jc.Stems()["lead"].Samples {
		if v != before[i] {
			t.Fatalf("analysis-only stage mutated samples at index %d", i)
		}
	}
	if _, ok := rec.Session["loudest_stem_db"]; !ok {
		t.Fatalf("expected loudest_stem_db in session summary")
	}
}

func TestKeyDetectionReportsUnknownBelowSilenceFloor(t *testing.T) {
	s := &audio.Stem{Name: "room", Channels: audio.Stereo, Samples: make([]float64, 200)}
	jc := newJobContext(t, 44100, s)
	c := contractFor("key_detection", contracts.KindAnalysisOnly, nil, nil)

	rec, err := KeyDetection{}.Analyse(context.Background(), jc, c)
	if err != nil {
		t.Fatalf("Analyse: %v", err)
	}
	if rec.Session["key"] != "unknown" {
		t.Fatalf("expected unknown key for silence, got %v", rec.Session["key"])
	}
}

func TestMixbusHeadroomReducesGainWhenOverTarget(t *testing.T) {
	s := sineStem("full", 512, 220, 44100, 0.95)
	jc := newJobContext(t, 44100, s)
	c := contractFor("mixbus_headroom", contracts.KindMixdownDSP,
		map[string]float64{"target_peak_dbfs": -6.0}, map[string]float64{"max_gain_db": 12.0})

	peakBefore := jc.Mixdown().Peak()
	if err := (MixbusHeadroom{}).Process(context.Background(), jc, c, analysis.Record{}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	peakAfter := jc.Mixdown().Peak()
	if peakAfter >= peakBefore {
		t.Fatalf("expected peak reduced, before=%v after=%v", peakBefore, peakAfter)
	}
	if dbFromLinear(peakAfter) > -6.0+1e-6 {
		t.Fatalf("expected peak at or below target, got %v dB", dbFromLinear(peakAfter))
	}
}

func TestMixbusHeadroomNoopWhenUnderTarget(t *testing.T) {
	s := sineStem("quiet", 512, 220, 44100, 0.1)
	jc := newJobContext(t, 44100, s)
	c := contractFor("mixbus_headroom", contracts.KindMixdownDSP,
		map[string]float64{"target_peak_dbfs": -6.0}, map[string]float64{"max_gain_db": 12.0})

	before := append([]float64(nil), jc.Mixdown().Samples...)
	if err := (MixbusHeadroom{}).Process(context.Background(), jc, c, analysis.Record{}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i, v := range jc.Mixdown().Samples {
		if v != before[i] {
			t.Fatalf("expected no-op when already under target, sample %d changed", i)
		}
	}
}

func TestStemHPFLPFAttenuatesOutOfBandStem(t *testing.T) {
	sampleRate := 44100
	s := sineStem("sub", 4096, 20, sampleRate, 0.8) // well below the 80Hz default HPF cutoff
	jc := newJobContext(t, sampleRate, s)
	c := contractFor("stem_hpf_lpf", contracts.KindStemsDSP,
		map[string]float64{"hpf_hz": 80.0, "lpf_hz": 18000.0}, nil)

	rmsBefore := rms(jc.Stems()["sub"].Samples)
	if err := (StemHPFLPF{}).Process(context.Background(), jc, c, analysis.Record{}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	rmsAfter := rms(jc.Stems()["sub"].Samples)
	if rmsAfter >= rmsBefore {
		t.Fatalf("expected sub-cutoff content attenuated, before=%v after=%v", rmsBefore, rmsAfter)
	}
}

func TestStemDynamicsReducesPeaksAboveThreshold(t *testing.T) {
	s := sineStem("drum", 512, 110, 44100, 0.9)
	jc := newJobContext(t, 44100, s)
	c := contractFor("stem_dynamics", contracts.KindStemsDSP,
		map[string]float64{"threshold_dbfs": -18.0, "ratio": 4.0}, map[string]float64{"max_gain_reduction_db": 12.0})

	peakBefore := peakAbs(jc.Stems()["drum"].Samples)
	if err := (StemDynamics{}).Process(context.Background(), jc, c, analysis.Record{}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	peakAfter := peakAbs(jc.Stems()["drum"].Samples)
	if peakAfter >= peakBefore {
		t.Fatalf("expected compression to reduce peak, before=%v after=%v", peakBefore, peakAfter)
	}
}

func TestMixbusTonalBalanceIsNoopAtTarget(t *testing.T) {
	s := sineStem("pad", 2048, 1000, 44100, 0.3)
	jc := newJobContext(t, 44100, s)
	c := contractFor("mixbus_tonal_balance", contracts.KindMixdownDSP,
		map[string]float64{"low_db": 0, "high_db": 0}, map[string]float64{"max_band_gain_db": 0})

	before := append([]float64(nil), jc.Mixdown().Samples...)
	if err := (MixbusTonalBalance{}).Process(context.Background(), jc, c, analysis.Record{}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i, v := range jc.Mixdown().Samples {
		if v != before[i] {
			t.Fatalf("expected no blend when max_band_gain_db is 0, sample %d changed", i)
		}
	}
}

func TestMixbusColorIsTransparentAtZeroDrive(t *testing.T) {
	s := sineStem("mix", 512, 440, 44100, 0.5)
	jc := newJobContext(t, 44100, s)
	c := contractFor("mixbus_color", contracts.KindMixdownDSP,
		map[string]float64{"drive": 0}, map[string]float64{"max_drive": 0.5})

	before := append([]float64(nil), jc.Mixdown().Samples...)
	if err := (MixbusColor{}).Process(context.Background(), jc, c, analysis.Record{}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i, v := range jc.Mixdown().Samples {
		if v != before[i] {
			t.Fatalf("expected transparent pass-through at zero drive, sample %d changed", i)
		}
	}
}

func TestMixbusColorClampsToMaxDrive(t *testing.T) {
	c := contractFor("mixbus_color", contracts.KindMixdownDSP,
		map[string]float64{"drive": 5.0}, map[string]float64{"max_drive": 0.5})
	if got := driveAmount(c); got != 0.5 {
		t.Fatalf("expected drive clamped to max_drive=0.5, got %v", got)
	}
}

func TestMasterFinalLimitsBringsPeakUnderCeiling(t *testing.T) {
	s := sineStem("master", 1024, 300, 44100, 0.99)
	jc := newJobContext(t, 44100, s)
	c := contractFor("master_final_limits", contracts.KindMixdownDSP,
		map[string]float64{"true_peak_ceiling_dbfs": -1.0}, map[string]float64{"max_gain_reduction_db": 18.0})

	if err := (MasterFinalLimits{}).Process(context.Background(), jc, c, analysis.Record{}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	peakDB := dbFromLinear(jc.Mixdown().Peak())
	if peakDB > -1.0+1e-6 {
		t.Fatalf("expected final peak at or below ceiling, got %v dB", peakDB)
	}
}
