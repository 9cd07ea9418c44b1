package pipeline

import (
	"testing"

	"github.com/mixmaster-audio/pipeline/internal/analysis"
	"github.com/mixmaster-audio/pipeline/internal/audio"
)

func TestContextLoadStemsAndRefreshMixdown(t *testing.T) {
	jc := NewContext("job-1", 44100)
	jc.LoadStems([]*audio.Stem{
		{Name: "a.wav", Channels: audio.Mono, Samples: []float64{1.0, 1.0}},
	})
	if jc.Mixdown() != nil {
		t.Fatalf("expected nil mixdown before first RefreshMixdown call")
	}
	jc.RefreshMixdown()
	if jc.Mixdown() == nil {
		t.Fatalf("expected mixdown after RefreshMixdown")
	}
	if jc.Mixdown().Channels != audio.Stereo {
		t.Fatalf("expected mixdown to always be stereo")
	}
}

func TestContextAnalysisHistoryAppendOnly(t *testing.T) {
	jc := NewContext("job-1", 44100)
	jc.RecordAnalysis(analysis.Record{StageID: "a", Session: map[string]any{"x": 1.0}})
	jc.RecordAnalysis(analysis.Record{StageID: "a", Session: map[string]any{"x": 2.0}})
	if len(jc.AnalysisResults()) != 2 {
		t.Fatalf("expected both records retained, got %d", len(jc.AnalysisResults()))
	}
	last, ok := jc.LastAnalysisFor("a")
	if !ok {
		t.Fatalf("expected a record for stage a")
	}
	if last.Session["x"] != 2.0 {
		t.Fatalf("expected LastAnalysisFor to return the most recent record")
	}
}

func TestContextCancellation(t *testing.T) {
	jc := NewContext("job-1", 44100)
	if jc.IsCancelled() {
		t.Fatalf("expected not cancelled initially")
	}
	jc.RequestCancel()
	if !jc.IsCancelled() {
		t.Fatalf("expected cancelled after RequestCancel")
	}
}

func TestContextMergeMetadata(t *testing.T) {
	jc := NewContext("job-1", 44100)
	jc.Metadata()["upload_mode"] = "stems"
	jc.MergeMetadata(map[string]any{"style_preset": "warm-pop", "upload_mode": "mixdown"})
	if jc.Metadata()["style_preset"] != "warm-pop" {
		t.Fatalf("expected style_preset to be merged in")
	}
	if jc.Metadata()["upload_mode"] != "mixdown" {
		t.Fatalf("expected MergeMetadata to overwrite an existing key")
	}
}

func TestContextArtifacts(t *testing.T) {
	jc := NewContext("job-1", 44100)
	jc.PutArtifact("preview.wav", []byte{1, 2, 3})
	data, ok := jc.GetArtifact("preview.wav")
	if !ok || len(data) != 3 {
		t.Fatalf("expected stored artifact to round-trip")
	}
	if _, ok := jc.GetArtifact("missing"); ok {
		t.Fatalf("expected missing artifact to report ok=false")
	}
}
