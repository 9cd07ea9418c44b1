package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/mixmaster-audio/pipeline/internal/analysis"
	"github.com/mixmaster-audio/pipeline/internal/contracts"
)

// Stage is the leaf unit of work (C3): a concrete implementation of one
// contract id. Every stage, regardless of Kind, implements both methods —
// for an analysis-only stage, Process is simply a no-op that returns nil,
// so the Stage Runner never has to special-case the interface itself.
type Stage interface {
	// Analyse measures the current job state and returns a Record. It must
	// not mutate anything reachable from ctx.
	Analyse(ctx context.Context, jc *Context, c contracts.Contract) (analysis.Record, error)

	// Process mutates the job state (stems, mixdown, or metadata) in place.
	// pre is the AnalysisRecord this same stage produced moments earlier in
	// the same runner pass. Analysis-only stages return nil immediately.
	Process(ctx context.Context, jc *Context, c contracts.Contract, pre analysis.Record) error
}

// Registry maps a contract id to the Stage implementation backing it. It is
// deliberately separate from contracts.Registry: the contract document
// describes *what* a stage is and where it sits in the ordering, the Stage
// Registry supplies *how* it actually runs.
type Registry struct {
	stages map[string]Stage
}

// NewRegistry returns an empty Stage Registry.
func NewRegistry() *Registry {
	return &Registry{stages: map[string]Stage{}}
}

// Register binds a stage id to its implementation. Registering the same id
// twice is a programming error and panics — this only ever happens at
// process startup, wiring a fixed roster.
func (r *Registry) Register(id string, s Stage) {
	if _, exists := r.stages[id]; exists {
		panic(fmt.Sprintf("pipeline: stage %q already registered", id))
	}
	r.stages[id] = s
}

// Get looks up a stage implementation by id, returning an UnknownStageError
// wrapped with the contracts package's type so callers can check both the
// contract and the implementation through the same error kind.
func (r *Registry) Get(id string) (Stage, error) {
	s, ok := r.stages[id]
	if !ok {
		return nil, &contracts.UnknownStageError{ID: id}
	}
	return s, nil
}

// RegisteredIDs returns every stage id with a bound implementation, sorted.
func (r *Registry) RegisteredIDs() []string {
	ids := make([]string, 0, len(r.stages))
	for id := range r.stages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NoopProcess is embeddable by analysis-only stages so they don't each have
// to redeclare an empty Process method.
type NoopProcess struct{}

func (NoopProcess) Process(context.Context, *Context, contracts.Contract, analysis.Record) error {
	return nil
}
