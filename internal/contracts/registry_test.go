package contracts

import "testing"

func TestLoadDefaultOrdersByOrdinal(t *testing.T) {
	r := NewRegistry()
	if err := r.LoadDefault(); err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	all := r.AllInOrder()
	if len(all) == 0 {
		t.Fatalf("expected at least one contract")
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Ordinal > all[i].Ordinal {
			t.Fatalf("contracts not sorted by ordinal at index %d: %d > %d", i, all[i-1].Ordinal, all[i].Ordinal)
		}
	}
	if all[0].ID != "session_format" {
		t.Fatalf("expected session_format first, got %s", all[0].ID)
	}
}

func TestGetUnknownStage(t *testing.T) {
	r := NewRegistry()
	_ = r.LoadDefault()
	_, err := r.Get("does_not_exist")
	if err == nil {
		t.Fatalf("expected UnknownStageError")
	}
	var unk *UnknownStageError
	if _, ok := err.(*UnknownStageError); !ok {
		t.Fatalf("expected *UnknownStageError, got %T", err)
	}
	_ = unk
}

func TestLoadRejectsDuplicateID(t *testing.T) {
	doc := Document{Stages: map[string][]Contract{
		"a": {{ID: "x", Ordinal: 0, Kind: KindAnalysisOnly}},
		"b": {{ID: "x", Ordinal: 1, Kind: KindAnalysisOnly}},
	}}
	r := NewRegistry()
	if err := r.Load(doc); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestLoadRejectsInvalidKind(t *testing.T) {
	doc := Document{Stages: map[string][]Contract{
		"a": {{ID: "x", Ordinal: 0, Kind: "bogus"}},
	}}
	r := NewRegistry()
	if err := r.Load(doc); err == nil {
		t.Fatalf("expected invalid kind error")
	}
}

func TestTieBreakByID(t *testing.T) {
	doc := Document{Stages: map[string][]Contract{
		"a": {
			{ID: "zeta", Ordinal: 5, Kind: KindAnalysisOnly},
			{ID: "alpha", Ordinal: 5, Kind: KindAnalysisOnly},
		},
	}}
	r := NewRegistry()
	if err := r.Load(doc); err != nil {
		t.Fatalf("Load: %v", err)
	}
	all := r.AllInOrder()
	if all[0].ID != "alpha" || all[1].ID != "zeta" {
		t.Fatalf("expected alpha before zeta on tie, got %v", all)
	}
}
