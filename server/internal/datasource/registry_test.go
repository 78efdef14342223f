package datasource

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/visioncontrol/visioncontrol/pkg/types"
)

// --- test helpers -----------------------------------------------------------

// tableOf returns a metric callback producing a one-cell table holding v.
func tableOf(v string) MetricFunc {
	return func(context.Context, map[string]any, types.Interval) (types.Result, error) {
		t := types.NewTable(types.Column{Name: "v", Type: types.ColumnString})
		t.Append(v)
		return t, nil
	}
}

func optionsOf(labels ...string) VariableFunc {
	return func(context.Context, map[string]any) (*types.Options, error) {
		o := types.NewOptions(len(labels))
		for _, l := range labels {
			o.Set(l, l)
		}
		return o, nil
	}
}

func callValue(t *testing.T, fn MetricFunc) string {
	t.Helper()
	res, err := fn(context.Background(), map[string]any{}, types.Interval{})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	return res.(*types.Table).Rows[0][0].(string)
}

// --- registration -----------------------------------------------------------

func TestRegistry_SameNameDifferentScopes(t *testing.T) {
	r := NewRegistry()
	r.AddMetrics("gitlab", map[string]MetricFunc{"commits": tableOf("gitlab")})
	r.AddMetrics("github", map[string]MetricFunc{"commits": tableOf("github")})

	for _, scope := range []string{"gitlab", "github"} {
		fn, err := r.Metric(scope, "commits")
		if err != nil {
			t.Fatalf("Metric(%s, commits): %v", scope, err)
		}
		if got := callValue(t, fn); got != scope {
			t.Errorf("Metric(%s, commits) produced %q", scope, got)
		}
	}
}

func TestRegistry_OverwriteKeepsSiblings(t *testing.T) {
	r := NewRegistry()
	r.AddMetrics("gitlab", map[string]MetricFunc{
		"commits": tableOf("old"),
		"issues":  tableOf("issues"),
	})
	r.AddMetrics("gitlab", map[string]MetricFunc{"commits": tableOf("new")})

	fn, err := r.Metric("gitlab", "commits")
	if err != nil {
		t.Fatalf("Metric: %v", err)
	}
	if got := callValue(t, fn); got != "new" {
		t.Errorf("commits: got %q, want new", got)
	}
	fn, err = r.Metric("gitlab", "issues")
	if err != nil {
		t.Fatalf("issues should survive a partial update: %v", err)
	}
	if got := callValue(t, fn); got != "issues" {
		t.Errorf("issues: got %q, want issues", got)
	}

	ids := slices.Collect(r.MetricIdentifiers())
	if want := []string{"gitlab-commits", "gitlab-issues"}; !slices.Equal(ids, want) {
		t.Errorf("identifiers: got %v, want %v", ids, want)
	}
}

func TestRegistry_IdentifiersGrowMonotonically(t *testing.T) {
	r := NewRegistry()
	if n := len(slices.Collect(r.MetricIdentifiers())); n != 0 {
		t.Fatalf("empty registry: got %d identifiers", n)
	}

	steps := []struct {
		scope string
		names []string
	}{
		{"gitlab", []string{"commits", "users"}},
		{"vision_control", []string{"version"}},
		{"gitlab", []string{"pipelines"}},
	}
	total := 0
	for _, s := range steps {
		m := make(map[string]MetricFunc)
		for _, n := range s.names {
			m[n] = tableOf(n)
		}
		r.AddMetrics(s.scope, m)
		total += len(s.names)

		ids := slices.Collect(r.MetricIdentifiers())
		if len(ids) != total {
			t.Fatalf("after adding %v: got %d identifiers, want %d", s.names, len(ids), total)
		}
		for _, n := range s.names {
			if !slices.Contains(ids, Identifier(s.scope, n)) {
				t.Errorf("identifiers %v missing %s", ids, Identifier(s.scope, n))
			}
		}
	}

	want := []string{"gitlab-commits", "gitlab-users", "gitlab-pipelines", "vision_control-version"}
	if ids := slices.Collect(r.MetricIdentifiers()); !slices.Equal(ids, want) {
		t.Errorf("order: got %v, want %v", ids, want)
	}
}

func TestRegistry_IdentifiersStopEarly(t *testing.T) {
	r := NewRegistry()
	r.AddMetrics("a", map[string]MetricFunc{"x": tableOf("x"), "y": tableOf("y")})

	var seen []string
	for id := range r.MetricIdentifiers() {
		seen = append(seen, id)
		break
	}
	if len(seen) != 1 || seen[0] != "a-x" {
		t.Errorf("got %v, want [a-x]", seen)
	}
}

// --- lookup -----------------------------------------------------------------

func TestRegistry_LookupErrorsAreDistinct(t *testing.T) {
	r := NewRegistry()
	r.AddMetrics("gitlab", map[string]MetricFunc{"commits": tableOf("c")})
	r.AddVariables("gitlab", map[string]VariableFunc{"branches": optionsOf("main")})

	_, err := r.Metric("ghost", "thing")
	var scopeErr *ScopeNotFoundError
	if !errors.As(err, &scopeErr) || scopeErr.Scope != "ghost" {
		t.Errorf("unknown scope: got %v, want ScopeNotFoundError(ghost)", err)
	}

	_, err = r.Metric("gitlab", "thing")
	var cbErr *CallbackNotFoundError
	if !errors.As(err, &cbErr) || cbErr.Scope != "gitlab" || cbErr.Name != "thing" {
		t.Errorf("unknown metric: got %v, want CallbackNotFoundError(gitlab, thing)", err)
	}
	if errors.As(err, &scopeErr) {
		t.Error("unknown metric must not be reported as unknown scope")
	}

	_, err = r.Variable("nope", "branches")
	if !errors.As(err, &scopeErr) {
		t.Errorf("unknown variable scope: got %v", err)
	}
	_, err = r.Variable("gitlab", "labels")
	if !errors.As(err, &cbErr) {
		t.Errorf("unknown variable: got %v", err)
	}
}

func TestRegistry_EmptyRegistrationCreatesNoScope(t *testing.T) {
	r := NewRegistry()
	r.AddMetrics("empty", map[string]MetricFunc{})
	r.AddVariables("empty", nil)

	_, err := r.Metric("empty", "anything")
	var scopeErr *ScopeNotFoundError
	if !errors.As(err, &scopeErr) || scopeErr.Scope != "empty" {
		t.Errorf("metric: got %v, want ScopeNotFoundError(empty)", err)
	}
	_, err = r.Variable("empty", "anything")
	if !errors.As(err, &scopeErr) {
		t.Errorf("variable: got %v, want ScopeNotFoundError(empty)", err)
	}
	if ids := slices.Collect(r.MetricIdentifiers()); len(ids) != 0 {
		t.Errorf("identifiers: got %v, want none", ids)
	}
}

func TestRegistry_MetricsAndVariablesAreIndependent(t *testing.T) {
	r := NewRegistry()
	r.AddVariables("static", map[string]VariableFunc{"env": optionsOf("prod")})

	if _, err := r.Metric("static", "env"); err == nil {
		t.Fatal("a variable must not be resolvable as a metric")
	}
	if n := len(slices.Collect(r.MetricIdentifiers())); n != 0 {
		t.Errorf("variables must not appear in search: got %d identifiers", n)
	}
}

func TestParseIdentifier(t *testing.T) {
	cases := []struct {
		id            string
		scope, metric string
		ok            bool
	}{
		{"gitlab-commits", "gitlab", "commits", true},
		{"vision_control-version", "vision_control", "version", true},
		{"gitlab", "", "", false},
		{"gitlab-", "", "", false},
		{"-commits", "", "", false},
		{"a-b-c", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		scope, metric, ok := ParseIdentifier(tc.id)
		if scope != tc.scope || metric != tc.metric || ok != tc.ok {
			t.Errorf("ParseIdentifier(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.id, scope, metric, ok, tc.scope, tc.metric, tc.ok)
		}
	}
}

func TestRegistry_ConcurrentRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.AddMetrics("base", map[string]MetricFunc{"m": tableOf("m")})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.AddVariables("static", map[string]VariableFunc{"env": optionsOf("prod")})
			r.AddMetrics("base", map[string]MetricFunc{"m": tableOf("m")})
		}()
		go func() {
			defer wg.Done()
			if _, err := r.Metric("base", "m"); err != nil {
				t.Errorf("Metric: %v", err)
			}
			_ = slices.Collect(r.MetricIdentifiers())
		}()
	}
	wg.Wait()
}
