// Package lobe holds the specialized responders. Each lobe is a
// registered Processor behind a Kind tag; adding a lobe is a
// registration, not a new branch in the worker.
package lobe

import (
	"context"
	"sync"

	"github.com/axonworks/cortexd/internal/store"
)

type Kind string

const (
	Frontal   Kind = "frontal"
	Temporal  Kind = "temporal"
	Parietal  Kind = "parietal"
	Occipital Kind = "occipital"

	// Auto defers lobe choice to the router.
	Auto Kind = "auto"
)

// NotImplementedResult is returned for a routed lobe with no
// registered processor, instead of failing the job.
const NotImplementedResult = "NO IMPLEMENTATION FOR THIS LOBE"

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case Frontal, Temporal, Parietal, Occipital, Auto:
		return Kind(s), true
	}
	return "", false
}

func Kinds() []Kind {
	return []Kind{Frontal, Temporal, Parietal, Occipital}
}

// Input is everything a processor may consume. FileContent carries the
// text of a locally resident file; File is the raw reference left for
// the occipital processor to interpret.
type Input struct {
	Query          string
	Mode           string
	ModePrompt     string
	TargetLanguage string
	MemoryContext  string
	FileContent    string
	File           *store.File
	User           *store.User
}

type Processor interface {
	Process(ctx context.Context, in Input) (string, error)
}

type Registry struct {
	mu    sync.RWMutex
	procs map[Kind]Processor
}

func NewRegistry() *Registry {
	return &Registry{procs: make(map[Kind]Processor)}
}

func (r *Registry) Register(kind Kind, p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[kind] = p
}

// Process dispatches to the registered processor. An unrecognized or
// unregistered lobe yields the sentinel result, not an error.
func (r *Registry) Process(ctx context.Context, kind Kind, in Input) (string, error) {
	r.mu.RLock()
	p, ok := r.procs[kind]
	r.mu.RUnlock()
	if !ok {
		return NotImplementedResult, nil
	}
	return p.Process(ctx, in)
}
