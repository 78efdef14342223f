// Package buildinfo serves the "vision_control" scope: facts about the running
// server itself.
package buildinfo

import (
	"context"

	"github.com/visioncontrol/visioncontrol/pkg/types"
	"github.com/visioncontrol/visioncontrol/server/internal/datasource"
)

// Scope is the registry scope of this adapter.
const Scope = "vision_control"

// Adapter reports the deployed revision.
type Adapter struct {
	revision func() string
}

// New returns an Adapter that reads the revision through revision on every
// query, so a value set after startup is still picked up.
func New(revision func() string) *Adapter {
	return &Adapter{revision: revision}
}

// Register adds the adapter's metrics to r.
func (a *Adapter) Register(r *datasource.Registry) {
	r.AddMetrics(Scope, map[string]datasource.MetricFunc{
		"version": a.Version,
	})
}

// Version returns a one-row table holding the revision.
func (a *Adapter) Version(context.Context, map[string]any, types.Interval) (types.Result, error) {
	tbl := types.NewTable(types.Column{Name: "version", Type: types.ColumnString})
	tbl.Append(a.revision())
	return tbl, nil
}
