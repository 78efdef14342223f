package datasource

import (
	"context"
	"iter"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/visioncontrol/visioncontrol/pkg/types"
)

// separator joins scope and metric in a target identifier.
const separator = "-"

// MetricFunc produces the data of one metric for the requested interval.
// payload is never nil.
type MetricFunc func(ctx context.Context, payload map[string]any, iv types.Interval) (types.Result, error)

// VariableFunc produces the selectable options of one variable.
// data is never nil.
type VariableFunc func(ctx context.Context, data map[string]any) (*types.Options, error)

// namespace is an insertion-ordered name → callback mapping.
type namespace[F any] struct {
	names []string
	funcs map[string]F
}

// table is a scope → namespace mapping that remembers scope order.
type table[F any] struct {
	scopes []string
	byName map[string]*namespace[F]
}

func newTable[F any]() *table[F] {
	return &table[F]{byName: make(map[string]*namespace[F])}
}

// merge adds funcs to scope, overwriting names that already exist. New names
// are appended in lexical order so that registration is deterministic. An
// empty funcs leaves the table untouched: a scope exists only once it holds a
// callback.
func (t *table[F]) merge(scope string, funcs map[string]F) {
	if len(funcs) == 0 {
		return
	}
	ns, ok := t.byName[scope]
	if !ok {
		ns = &namespace[F]{funcs: make(map[string]F, len(funcs))}
		t.byName[scope] = ns
		t.scopes = append(t.scopes, scope)
	}

	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, exists := ns.funcs[name]; !exists {
			ns.names = append(ns.names, name)
		}
		ns.funcs[name] = funcs[name]
	}
}

func (t *table[F]) lookup(scope, name string) (F, error) {
	var zero F
	ns, ok := t.byName[scope]
	if !ok {
		return zero, &ScopeNotFoundError{Scope: scope}
	}
	fn, ok := ns.funcs[name]
	if !ok {
		return zero, &CallbackNotFoundError{Scope: scope, Name: name}
	}
	return fn, nil
}

// Registry holds the metric and variable callbacks, each keyed by scope and
// then by name. It is safe for concurrent use; registration may happen while
// requests are being served.
type Registry struct {
	mu        sync.RWMutex
	metrics   *table[MetricFunc]
	variables *table[VariableFunc]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		metrics:   newTable[MetricFunc](),
		variables: newTable[VariableFunc](),
	}
}

// AddMetrics merges metrics into scope, creating the scope if needed.
// Existing names are overwritten; other names in the scope are kept.
func (r *Registry) AddMetrics(scope string, metrics map[string]MetricFunc) {
	warnSeparator(scope, keys(metrics))

	r.mu.Lock()
	r.metrics.merge(scope, metrics)
	r.mu.Unlock()

	slog.Debug("datasource: metrics added", "scope", scope, "count", len(metrics))
}

// AddVariables merges variables into scope, creating the scope if needed.
// Variable names may contain the separator: variables are addressed by scope
// and name separately.
func (r *Registry) AddVariables(scope string, variables map[string]VariableFunc) {
	r.mu.Lock()
	r.variables.merge(scope, variables)
	r.mu.Unlock()

	slog.Debug("datasource: variables added", "scope", scope, "count", len(variables))
}

// Metric returns the metric callback registered under scope and name.
func (r *Registry) Metric(scope, name string) (MetricFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics.lookup(scope, name)
}

// Variable returns the variable callback registered under scope and name.
func (r *Registry) Variable(scope, name string) (VariableFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.variables.lookup(scope, name)
}

// MetricIdentifiers yields "scope-metric" for every registered metric, scopes
// and names in registration order. The sequence reflects the registry at the
// time it is called.
func (r *Registry) MetricIdentifiers() iter.Seq[string] {
	r.mu.RLock()
	ids := make([]string, 0, len(r.metrics.scopes))
	for _, scope := range r.metrics.scopes {
		for _, name := range r.metrics.byName[scope].names {
			ids = append(ids, Identifier(scope, name))
		}
	}
	r.mu.RUnlock()

	return func(yield func(string) bool) {
		for _, id := range ids {
			if !yield(id) {
				return
			}
		}
	}
}

// Identifier builds the target identifier of a metric.
func Identifier(scope, metric string) string {
	return scope + separator + metric
}

// ParseIdentifier splits a target identifier into scope and metric. It fails
// unless the identifier holds exactly one separator with text on both sides.
func ParseIdentifier(id string) (scope, metric string, ok bool) {
	parts := strings.Split(id, separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func keys[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// warnSeparator logs names that can never be addressed by a target identifier.
func warnSeparator(scope string, names []string) {
	if strings.Contains(scope, separator) {
		slog.Warn("datasource: scope contains separator", "scope", scope, "separator", separator)
	}
	for _, name := range names {
		if strings.Contains(name, separator) {
			slog.Warn("datasource: metric name contains separator", "scope", scope, "metric", name, "separator", separator)
		}
	}
}
