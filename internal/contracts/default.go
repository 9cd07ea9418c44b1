package contracts

import (
	"bytes"
	_ "embed"
)

//go:embed stages.json
var defaultStagesJSON []byte

// LoadDefault populates the registry from the module's built-in stages.json,
// the default contract set described in SPEC_FULL.md's SUPPLEMENTED section.
// Deployments that want a different stage roster supply their own contract
// file via LoadFromReader instead.
func (r *Registry) LoadDefault() error {
	return r.LoadFromReader(bytes.NewReader(defaultStagesJSON))
}
