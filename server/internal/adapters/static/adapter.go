// Package static serves the "static" scope: variables whose options are
// written in the config file and follow it across reloads.
package static

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/visioncontrol/visioncontrol/pkg/types"
	"github.com/visioncontrol/visioncontrol/server/internal/config"
	"github.com/visioncontrol/visioncontrol/server/internal/datasource"
)

// Scope is the registry scope of this adapter.
const Scope = "static"

type snapshot map[string][]config.StaticOption

// Adapter answers static variables from the latest config snapshot.
type Adapter struct {
	current atomic.Pointer[snapshot]

	mu         sync.Mutex
	registry   *datasource.Registry
	registered map[string]bool
}

// New builds an Adapter holding the variables of cfg.
func New(cfg config.StaticConfig) *Adapter {
	a := &Adapter{registered: make(map[string]bool)}
	a.current.Store(build(cfg))
	return a
}

func build(cfg config.StaticConfig) *snapshot {
	s := make(snapshot, len(cfg.Variables))
	for _, v := range cfg.Variables {
		s[v.Name] = v.Options
	}
	return &s
}

// Register adds every current variable to r. Later calls to Update register
// new names on the same registry.
func (a *Adapter) Register(r *datasource.Registry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registry = r
	a.registerLocked(*a.current.Load())
}

func (a *Adapter) registerLocked(s snapshot) {
	if a.registry == nil {
		return
	}
	added := make(map[string]datasource.VariableFunc)
	for name := range s {
		if !a.registered[name] {
			added[name] = a.variable(name)
			a.registered[name] = true
		}
	}
	if len(added) > 0 {
		a.registry.AddVariables(Scope, added)
	}
}

// Update swaps in the variables of cfg. Names that disappeared stay
// registered but answer ResourceNotFound until they come back.
func (a *Adapter) Update(cfg config.StaticConfig) {
	s := build(cfg)
	a.current.Store(s)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.registerLocked(*s)
	slog.Info("static: variables reloaded", "count", len(*s))
}

func (a *Adapter) variable(name string) datasource.VariableFunc {
	return func(context.Context, map[string]any) (*types.Options, error) {
		options, ok := (*a.current.Load())[name]
		if !ok {
			return nil, &datasource.ResourceNotFoundError{Kind: "variable", ID: name}
		}
		opts := types.NewOptions(len(options))
		for _, o := range options {
			opts.Set(o.Label, o.Value)
		}
		return opts, nil
	}
}
