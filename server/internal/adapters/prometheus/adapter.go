// Package prometheus serves the "prometheus" scope: metric families scraped on
// demand from Prometheus text exposition endpoints.
package prometheus

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/visioncontrol/visioncontrol/pkg/types"
	"github.com/visioncontrol/visioncontrol/server/internal/adapters/payload"
	"github.com/visioncontrol/visioncontrol/server/internal/config"
	"github.com/visioncontrol/visioncontrol/server/internal/datasource"
)

// Scope is the registry scope of this adapter.
const Scope = "prometheus"

type source struct {
	name     string
	endpoint string
	authMode string
	insecure bool
	client   *http.Client
}

// Adapter scrapes the configured sources. Every query scrapes afresh.
type Adapter struct {
	sources []*source
	byName  map[string]*source
	now     func() time.Time // injectable for deterministic tests
}

// New builds an Adapter for the configured sources.
func New(cfg config.PrometheusConfig) *Adapter {
	a := &Adapter{byName: make(map[string]*source), now: time.Now}
	for _, src := range cfg.Sources {
		s := &source{
			name:     src.Name,
			endpoint: src.Endpoint,
			authMode: src.Auth.Mode,
			insecure: src.TLS.InsecureSkipVerify,
			client:   newHTTPClient(src),
		}
		a.sources = append(a.sources, s)
		a.byName[s.name] = s
	}
	return a
}

// Register adds the adapter's metrics and variables to r.
func (a *Adapter) Register(r *datasource.Registry) {
	r.AddMetrics(Scope, map[string]datasource.MetricFunc{
		"families":     a.Families,
		"value":        a.Value,
		"certificates": a.Certificates,
	})
	r.AddVariables(Scope, map[string]datasource.VariableFunc{
		"sources":  a.Sources,
		"families": a.FamilyNames,
	})
}

// source resolves the "source" key of a payload; the first configured source
// is the default.
func (a *Adapter) source(p payload.Reader) (*source, error) {
	def := ""
	if len(a.sources) > 0 {
		def = a.sources[0].name
	}
	name, err := p.String("source", def)
	if err != nil {
		return nil, err
	}
	s, ok := a.byName[name]
	if !ok {
		return nil, &datasource.ResourceNotFoundError{Kind: "source", ID: name}
	}
	return s, nil
}

func (a *Adapter) scrape(ctx context.Context, s *source) (map[string]*dto.MetricFamily, error) {
	mfs, err := fetchFamilies(ctx, s.client, s.endpoint)
	if err != nil {
		slog.Warn("prometheus: scrape failed", "source", s.name, "err", err)
		return nil, fmt.Errorf("prometheus scrape %q: %w", s.name, err)
	}
	return mfs, nil
}

// Families lists every metric family exposed by a source.
// Payload: {"source": name}.
func (a *Adapter) Families(ctx context.Context, data map[string]any, _ types.Interval) (types.Result, error) {
	s, err := a.source(payload.New(datasource.Identifier(Scope, "families"), data))
	if err != nil {
		return nil, err
	}
	mfs, err := a.scrape(ctx, s)
	if err != nil {
		return nil, err
	}

	tbl := types.NewTable(
		types.Column{Name: "Name", Type: types.ColumnString},
		types.Column{Name: "Type", Type: types.ColumnString},
		types.Column{Name: "Help", Type: types.ColumnString},
		types.Column{Name: "Series", Type: types.ColumnNumeric},
		types.Column{Name: "Total", Type: types.ColumnNumeric},
	)
	for _, name := range familyNames(mfs) {
		mf := mfs[name]
		tbl.Append(
			name,
			strings.ToLower(mf.GetType().String()),
			mf.GetHelp(),
			len(mf.GetMetric()),
			sumFamily(mf, nil),
		)
	}
	return tbl, nil
}

// Value returns the current total of one metric family as a single point
// stamped with the scrape time.
// Payload: {"source": name, "metric": family, "labels": {name: value}}.
func (a *Adapter) Value(ctx context.Context, data map[string]any, _ types.Interval) (types.Result, error) {
	p := payload.New(datasource.Identifier(Scope, "value"), data)
	s, err := a.source(p)
	if err != nil {
		return nil, err
	}
	metric, err := p.RequiredString("metric")
	if err != nil {
		return nil, err
	}
	match, err := p.StringMap("labels")
	if err != nil {
		return nil, err
	}

	mfs, err := a.scrape(ctx, s)
	if err != nil {
		return nil, err
	}
	scrapedAt := a.now()

	mf, ok := mfs[metric]
	if !ok {
		return nil, &datasource.ResourceNotFoundError{Kind: "metric", ID: metric}
	}
	return &types.TimeSeries{Points: []types.Point{types.At(sumFamily(mf, match), scrapedAt)}}, nil
}

// Sources offers the configured source names.
func (a *Adapter) Sources(context.Context, map[string]any) (*types.Options, error) {
	opts := types.NewOptions(len(a.sources))
	for _, s := range a.sources {
		opts.Set(s.name, s.name)
	}
	return opts, nil
}

// FamilyNames offers the metric family names of a source.
// Data: {"source": name}.
func (a *Adapter) FamilyNames(ctx context.Context, data map[string]any) (*types.Options, error) {
	s, err := a.source(payload.New(Scope+"/families", data))
	if err != nil {
		return nil, err
	}
	mfs, err := a.scrape(ctx, s)
	if err != nil {
		return nil, err
	}
	names := familyNames(mfs)
	opts := types.NewOptions(len(names))
	for _, name := range names {
		opts.Set(name, name)
	}
	return opts, nil
}

func familyNames(mfs map[string]*dto.MetricFamily) []string {
	names := make([]string, 0, len(mfs))
	for name := range mfs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
