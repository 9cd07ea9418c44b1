package contracts

import (
	"strings"
	"testing"
)

const sampleDoc = `{
  "stages": {
    "0": [
      {"id": "a", "name": "A", "ordinal": 0, "kind": "analysis-only"},
      {"id": "b", "name": "B", "ordinal": 1, "kind": "stems-dsp", "depends_on": ["a"]}
    ]
  }
}`

func TestLoadFromReaderDecodesDocument(t *testing.T) {
	r := NewRegistry()
	if err := r.LoadFromReader(strings.NewReader(sampleDoc)); err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if !r.Loaded() {
		t.Fatalf("expected registry to be marked loaded")
	}
	c, err := r.Get("b")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(c.DependsOn) != 1 || c.DependsOn[0] != "a" {
		t.Fatalf("expected depends_on [a], got %v", c.DependsOn)
	}
}

func TestDecodeDocumentRejectsUnknownFields(t *testing.T) {
	bad := `{"stages": {"0": [{"id": "a", "ordinal": 0, "kind": "analysis-only", "bogus": true}]}}`
	if _, err := DecodeDocument(strings.NewReader(bad)); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}
