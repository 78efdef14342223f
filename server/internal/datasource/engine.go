package datasource

import (
	"encoding/json"
	"slices"
)

// Engine answers search, query and variable requests from a Registry.
// It keeps no state of its own and is safe for concurrent use.
type Engine struct {
	registry *Registry
}

// NewEngine returns an Engine reading callbacks from r.
func NewEngine(r *Registry) *Engine {
	return &Engine{registry: r}
}

// Search returns the identifier of every registered metric.
func (e *Engine) Search() []string {
	ids := slices.Collect(e.registry.MetricIdentifiers())
	if ids == nil {
		ids = []string{}
	}
	return ids
}

// decodeObject decodes raw into a map. Anything that is not a JSON object,
// including an absent value, yields an empty map: callbacks always receive a
// mapping.
func decodeObject(raw json.RawMessage) map[string]any {
	out := make(map[string]any)
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return make(map[string]any)
	}
	return out
}

// isAbsent reports whether a raw field was omitted or explicitly null.
func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
