package analysis

import (
	"math"
	"testing"
)

func TestComputeBasicDelta(t *testing.T) {
	pre := Record{StageID: "s", Session: map[string]any{"rms_db": -12.0, "label": "x"}}
	post := Record{StageID: "s", Session: map[string]any{"rms_db": -18.02, "label": "y"}}
	d := Compute(pre, post)
	fd, ok := d.Session["rms_db"]
	if !ok {
		t.Fatalf("expected rms_db diff")
	}
	if math.Abs(fd.Delta-(-6.02)) > 1e-9 {
		t.Fatalf("delta = %v, want -6.02", fd.Delta)
	}
	if !fd.Changed {
		t.Fatalf("expected changed=true")
	}
	if _, ok := d.Session["label"]; ok {
		t.Fatalf("non-numeric field should not appear in diff")
	}
}

func TestComputeBelowThresholdUnchanged(t *testing.T) {
	pre := Record{Session: map[string]any{"x": 1.0}}
	post := Record{Session: map[string]any{"x": 1.0005}}
	d := Compute(pre, post)
	if d.Session["x"].Changed {
		t.Fatalf("expected unchanged for delta below threshold")
	}
}

func TestComputeNegInfSemantics(t *testing.T) {
	pre := Record{Session: map[string]any{"silence_db": math.Inf(-1)}}
	post := Record{Session: map[string]any{"silence_db": math.Inf(-1)}}
	d := Compute(pre, post)
	fd := d.Session["silence_db"]
	if fd.Delta != 0 || fd.Changed {
		t.Fatalf("-inf vs -inf should be delta=0, changed=false; got %+v", fd)
	}

	post2 := Record{Session: map[string]any{"silence_db": -20.0}}
	d2 := Compute(pre, post2)
	fd2 := d2.Session["silence_db"]
	if !math.IsInf(fd2.Delta, 1) || !fd2.Changed {
		t.Fatalf("-inf vs finite should be delta=+inf, changed=true; got %+v", fd2)
	}
}

func TestComputeStemsSortedByFileNameAndIntersected(t *testing.T) {
	pre := Record{Stems: []StemMeasurement{
		{FileName: "b.wav", Values: map[string]any{"peak": 0.5}},
		{FileName: "a.wav", Values: map[string]any{"peak": 0.5}},
		{FileName: "only_pre.wav", Values: map[string]any{"peak": 0.1}},
	}}
	post := Record{Stems: []StemMeasurement{
		{FileName: "b.wav", Values: map[string]any{"peak": 0.25}},
		{FileName: "a.wav", Values: map[string]any{"peak": 0.5}},
	}}
	d := Compute(pre, post)
	if len(d.Stems) != 2 {
		t.Fatalf("expected 2 intersected stems, got %d", len(d.Stems))
	}
	if d.Stems[0].FileName != "a.wav" || d.Stems[1].FileName != "b.wav" {
		t.Fatalf("expected stems sorted by file name, got %v", d.Stems)
	}
}

func TestAllUnchanged(t *testing.T) {
	pre := Record{Session: map[string]any{"x": 1.0}}
	post := Record{Session: map[string]any{"x": 1.0}}
	d := Compute(pre, post)
	if !d.AllUnchanged() {
		t.Fatalf("expected AllUnchanged=true for identical records")
	}
}
