package contracts

import (
	"encoding/json"
	"fmt"
	"io"
)

// Document is the top-level shape of a contract file (§6): a `stages`
// mapping keyed by an arbitrary ordinal/category label (e.g. "0", "1",
// "structural") whose values are lists of stage entries. The category key
// itself carries no semantics beyond grouping in the source document —
// ordering is entirely driven by each entry's own `ordinal` field.
type Document struct {
	Stages map[string][]Contract `json:"stages"`
}

func (d Document) flatten() []Contract {
	var out []Contract
	for _, group := range d.Stages {
		out = append(out, group...)
	}
	return out
}

// DecodeDocument parses a contract file (§6 format) from r.
func DecodeDocument(r io.Reader) (Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("contracts: decode document: %w", err)
	}
	return doc, nil
}

// LoadFromReader is a convenience that decodes and loads a document into r
// in one step.
func (r *Registry) LoadFromReader(src io.Reader) error {
	doc, err := DecodeDocument(src)
	if err != nil {
		return err
	}
	return r.Load(doc)
}
