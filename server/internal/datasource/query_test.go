package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/visioncontrol/visioncontrol/pkg/types"
)

const (
	rangeFrom = "2024-03-01T00:00:00.000000+00:00"
	rangeTo   = "2024-03-08T12:30:00.500000+02:00"
)

// decodeQuery builds a QueryRequest the way the HTTP layer does.
func decodeQuery(t *testing.T, body string) QueryRequest {
	t.Helper()
	var req QueryRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode query: %v", err)
	}
	return req
}

func commitsTable() *types.Table {
	tbl := types.NewTable(
		types.Column{Name: "Time", Type: types.ColumnTime},
		types.Column{Name: "Author", Type: types.ColumnString},
		types.Column{Name: "Message", Type: types.ColumnString},
	)
	tbl.Append(int64(1709300000000), "alice", "fix build")
	tbl.Append(int64(1709200000000), "bob", "add parser")
	tbl.Append(int64(1709400000000), "carol", "bump deps")
	return tbl
}

type unknownShape struct{}

func (unknownShape) Shape() string { return "histogram" }

// --- normalization ----------------------------------------------------------

func TestQuery_TableRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.AddMetrics("gitlab", map[string]MetricFunc{
		"commits": func(context.Context, map[string]any, types.Interval) (types.Result, error) {
			return commitsTable(), nil
		},
	})
	e := NewEngine(r)

	out, err := e.Query(context.Background(), decodeQuery(t, `{
		"range": {"from": "`+rangeFrom+`", "to": "`+rangeTo+`"},
		"targets": [{"target": "gitlab-commits", "refId": "A"}]
	}`))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len: got %d, want 1", len(out))
	}

	b, err := json.Marshal(out[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"refId":"A","columns":[{"text":"Time","type":"time"},{"text":"Author","type":"string"},` +
		`{"text":"Message","type":"string"}],"rows":[[1709300000000,"alice","fix build"],` +
		`[1709200000000,"bob","add parser"],[1709400000000,"carol","bump deps"]],"type":"table"}`
	if string(b) != want {
		t.Errorf("table response:\n got %s\nwant %s", b, want)
	}
}

func TestQuery_TimeSeriesUnchanged(t *testing.T) {
	t1, t2 := int64(1709300000000), int64(1709300060000)
	r := NewRegistry()
	r.AddMetrics("gitlab", map[string]MetricFunc{
		"commits": func(context.Context, map[string]any, types.Interval) (types.Result, error) {
			return &types.TimeSeries{Points: []types.Point{{Value: 1, Time: t1}, {Value: 1, Time: t2}}}, nil
		},
	})

	out, err := NewEngine(r).Query(context.Background(), decodeQuery(t, `{
		"range": {"from": "`+rangeFrom+`", "to": "`+rangeTo+`"},
		"targets": [{"target": "gitlab-commits", "refId": "B"}]
	}`))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	ts, ok := out[0].(*TimeSeriesResponse)
	if !ok {
		t.Fatalf("got %T, want *TimeSeriesResponse", out[0])
	}
	if ts.RefID != "B" || ts.Target != "gitlab-commits" {
		t.Errorf("refId/target: got %q/%q", ts.RefID, ts.Target)
	}
	b, _ := json.Marshal(ts)
	want := `{"refId":"B","target":"gitlab-commits","datapoints":[[1,1709300000000],[1,1709300060000]]}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}

func TestQuery_EmptyResultsEncodeAsArrays(t *testing.T) {
	r := NewRegistry()
	r.AddMetrics("s", map[string]MetricFunc{
		"table": func(context.Context, map[string]any, types.Interval) (types.Result, error) {
			return &types.Table{Columns: []types.Column{{Name: "x"}}}, nil
		},
		"series": func(context.Context, map[string]any, types.Interval) (types.Result, error) {
			return &types.TimeSeries{}, nil
		},
	})

	out, err := NewEngine(r).Query(context.Background(), decodeQuery(t, `{
		"range": {"from": "`+rangeFrom+`", "to": "`+rangeTo+`"},
		"targets": [{"target": "s-table", "refId": "A"}, {"target": "s-series", "refId": "B"}]
	}`))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	b, _ := json.Marshal(out)
	want := `[{"refId":"A","columns":[{"text":"x","type":"string"}],"rows":[],"type":"table"},` +
		`{"refId":"B","target":"s-series","datapoints":[]}]`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}

func TestQuery_UnsupportedShape(t *testing.T) {
	cases := map[string]types.Result{
		"unknown":   unknownShape{},
		"nil":       nil,
		"nil table": (*types.Table)(nil),
	}
	for name, res := range cases {
		t.Run(name, func(t *testing.T) {
			r := NewRegistry()
			r.AddMetrics("s", map[string]MetricFunc{
				"m": func(context.Context, map[string]any, types.Interval) (types.Result, error) { return res, nil },
			})
			_, err := NewEngine(r).Query(context.Background(), decodeQuery(t, `{
				"range": {"from": "`+rangeFrom+`", "to": "`+rangeTo+`"},
				"targets": [{"target": "s-m", "refId": "A"}]
			}`))
			var shapeErr *UnsupportedResultShapeError
			if !errors.As(err, &shapeErr) {
				t.Fatalf("got %v, want UnsupportedResultShapeError", err)
			}
			if IsRequestError(err) {
				t.Error("an unsupported shape is a server defect, not a request error")
			}
		})
	}
}

// --- interval and payload ---------------------------------------------------

func TestQuery_SharedIntervalAndPayload(t *testing.T) {
	var intervals []types.Interval
	var payloads []map[string]any
	record := func(_ context.Context, payload map[string]any, iv types.Interval) (types.Result, error) {
		intervals = append(intervals, iv)
		payloads = append(payloads, payload)
		return &types.TimeSeries{}, nil
	}
	r := NewRegistry()
	r.AddMetrics("s", map[string]MetricFunc{"a": record, "b": record, "c": record, "d": record})

	_, err := NewEngine(r).Query(context.Background(), decodeQuery(t, `{
		"range": {"from": "`+rangeFrom+`", "to": "`+rangeTo+`"},
		"targets": [
			{"target": "s-a", "refId": "A", "payload": {"project": 42, "branch": "main"}},
			{"target": "s-b", "refId": "B", "payload": "not an object"},
			{"target": "s-c", "refId": "C"},
			{"target": "s-d", "refId": "D", "payload": [1, 2]}
		]
	}`))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	wantStart := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, 3, 8, 10, 30, 0, 500000000, time.UTC)
	for i, iv := range intervals {
		if !iv.Start.Equal(wantStart) || !iv.End.Equal(wantEnd) {
			t.Errorf("target %d interval: got %v–%v, want %v–%v", i, iv.Start, iv.End, wantStart, wantEnd)
		}
	}

	if !reflect.DeepEqual(payloads[0], map[string]any{"project": float64(42), "branch": "main"}) {
		t.Errorf("payload A: got %v", payloads[0])
	}
	for i, p := range payloads[1:] {
		if p == nil || len(p) != 0 {
			t.Errorf("payload %d: got %v, want empty map", i+1, p)
		}
	}
}

func TestQuery_NoTargets(t *testing.T) {
	out, err := NewEngine(NewRegistry()).Query(context.Background(), decodeQuery(t, `{
		"range": {"from": "`+rangeFrom+`", "to": "`+rangeTo+`"}
	}`))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Errorf("got %v, want empty slice", out)
	}
}

func TestQuery_CallbackErrorPropagates(t *testing.T) {
	upstream := errors.New("gitlab: connection refused")
	r := NewRegistry()
	r.AddMetrics("gitlab", map[string]MetricFunc{
		"commits": func(context.Context, map[string]any, types.Interval) (types.Result, error) {
			return nil, upstream
		},
		"issues": func(context.Context, map[string]any, types.Interval) (types.Result, error) {
			return nil, &ResourceNotFoundError{Kind: "project", ID: 7}
		},
	})
	e := NewEngine(r)

	_, err := e.Query(context.Background(), decodeQuery(t, `{
		"range": {"from": "`+rangeFrom+`", "to": "`+rangeTo+`"},
		"targets": [{"target": "gitlab-commits", "refId": "A"}]
	}`))
	if !errors.Is(err, upstream) {
		t.Errorf("got %v, want upstream error", err)
	}
	if IsRequestError(err) {
		t.Error("upstream failures are not request errors")
	}

	_, err = e.Query(context.Background(), decodeQuery(t, `{
		"range": {"from": "`+rangeFrom+`", "to": "`+rangeTo+`"},
		"targets": [{"target": "gitlab-issues", "refId": "A"}]
	}`))
	var nf *ResourceNotFoundError
	if !errors.As(err, &nf) || !IsRequestError(err) {
		t.Errorf("got %v, want ResourceNotFoundError request error", err)
	}
}

func TestQuery_FirstErrorAbortsBatch(t *testing.T) {
	calls := 0
	r := NewRegistry()
	r.AddMetrics("s", map[string]MetricFunc{
		"ok": func(context.Context, map[string]any, types.Interval) (types.Result, error) {
			calls++
			return &types.TimeSeries{}, nil
		},
	})

	out, err := NewEngine(r).Query(context.Background(), decodeQuery(t, `{
		"range": {"from": "`+rangeFrom+`", "to": "`+rangeTo+`"},
		"targets": [
			{"target": "s-ok", "refId": "A"},
			{"target": "s-missing", "refId": "B"},
			{"target": "s-ok", "refId": "C"}
		]
	}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if out != nil {
		t.Errorf("partial results returned: %v", out)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1 (processing stops at the failing target)", calls)
	}
}

// --- validation -------------------------------------------------------------

func TestQuery_Validation(t *testing.T) {
	r := NewRegistry()
	r.AddMetrics("gitlab", map[string]MetricFunc{"commits": tableOf("c")})
	e := NewEngine(r)

	okRange := `"range": {"from": "` + rangeFrom + `", "to": "` + rangeTo + `"}`

	cases := []struct {
		name  string
		body  string
		check func(error) bool
		msg   string
	}{
		{
			name:  "missing range",
			body:  `{"targets": []}`,
			check: isMissing("range"),
			msg:   "missing field: range",
		},
		{
			name:  "missing from",
			body:  `{"range": {"to": "` + rangeTo + `"}}`,
			check: isMissing("range.from"),
			msg:   "missing field: range.from",
		},
		{
			name:  "missing to",
			body:  `{"range": {"from": "` + rangeFrom + `"}}`,
			check: isMissing("range.to"),
			msg:   "missing field: range.to",
		},
		{
			name:  "null from",
			body:  `{"range": {"from": null, "to": "` + rangeTo + `"}}`,
			check: isMissing("range.from"),
			msg:   "missing field: range.from",
		},
		{
			name:  "from without fraction",
			body:  `{"range": {"from": "2024-03-01T00:00:00+00:00", "to": "` + rangeTo + `"}}`,
			check: isInvalid("range.from"),
			msg:   `invalid value for range.from: "2024-03-01T00:00:00+00:00"`,
		},
		{
			name:  "to without offset",
			body:  `{"range": {"from": "` + rangeFrom + `", "to": "2024-03-08T12:30:00.500000"}}`,
			check: isInvalid("range.to"),
			msg:   `invalid value for range.to: "2024-03-08T12:30:00.500000"`,
		},
		{
			name:  "from not a string",
			body:  `{"range": {"from": 1709251200000, "to": "` + rangeTo + `"}}`,
			check: isInvalid("range.from"),
			msg:   `invalid value for range.from: "1709251200000"`,
		},
		{
			name:  "range not an object",
			body:  `{"range": "yesterday", "targets": []}`,
			check: isInvalid("range"),
			msg:   `invalid value for range: "\"yesterday\""`,
		},
		{
			name:  "targets not a list",
			body:  `{` + okRange + `, "targets": {"target": "gitlab-commits"}}`,
			check: isInvalid("targets"),
			msg:   `invalid value for targets: "{\"target\": \"gitlab-commits\"}"`,
		},
		{
			name:  "target not a string",
			body:  `{` + okRange + `, "targets": [{"target": 5, "refId": "A"}]}`,
			check: isInvalid("target"),
			msg:   `invalid value for target: "5"`,
		},
		{
			name:  "refId not a string",
			body:  `{` + okRange + `, "targets": [{"target": "gitlab-commits", "refId": ["A"]}]}`,
			check: isInvalid("refId"),
			msg:   `invalid value for refId: "[\"A\"]"`,
		},
		{
			name:  "empty target",
			body:  `{` + okRange + `, "targets": [{"target": "", "refId": "A"}]}`,
			check: isMissing("target"),
			msg:   "missing field: target",
		},
		{
			name:  "missing target",
			body:  `{` + okRange + `, "targets": [{"refId": "A"}]}`,
			check: isMissing("target"),
			msg:   "missing field: target",
		},
		{
			name:  "missing refId",
			body:  `{` + okRange + `, "targets": [{"target": "gitlab-commits"}]}`,
			check: isMissing("refId"),
			msg:   "missing field: refId",
		},
		{
			name:  "target without separator",
			body:  `{` + okRange + `, "targets": [{"target": "gitlabcommits", "refId": "A"}]}`,
			check: isInvalid("target"),
			msg:   `invalid value for target: "gitlabcommits"`,
		},
		{
			name:  "target with two separators",
			body:  `{` + okRange + `, "targets": [{"target": "git-lab-commits", "refId": "A"}]}`,
			check: isInvalid("target"),
			msg:   `invalid value for target: "git-lab-commits"`,
		},
		{
			name: "unknown scope",
			body: `{` + okRange + `, "targets": [{"target": "ghost-thing", "refId": "A"}]}`,
			check: func(err error) bool {
				var e *ScopeNotFoundError
				return errors.As(err, &e) && e.Scope == "ghost"
			},
			msg: `"ghost" is not a valid scope`,
		},
		{
			name: "unknown metric",
			body: `{` + okRange + `, "targets": [{"target": "gitlab-thing", "refId": "A"}]}`,
			check: func(err error) bool {
				var e *CallbackNotFoundError
				return errors.As(err, &e) && e.Scope == "gitlab" && e.Name == "thing"
			},
			msg: `callback does not exist for "thing" in scope "gitlab"`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Query(context.Background(), decodeQuery(t, tc.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !tc.check(err) {
				t.Errorf("wrong error kind: %T %v", err, err)
			}
			if !IsRequestError(err) {
				t.Errorf("%T should be a request error", err)
			}
			if err.Error() != tc.msg {
				t.Errorf("message: got %q, want %q", err.Error(), tc.msg)
			}
		})
	}
}

func TestParseInstant_AcceptedForms(t *testing.T) {
	for _, s := range []string{
		"2024-03-01T00:00:00.000Z",
		"2024-03-01T00:00:00.123456+00:00",
		"2024-03-01T01:00:00.1+01:00",
	} {
		raw, _ := json.Marshal(s)
		ts, err := parseInstant("range.from", raw)
		if err != nil {
			t.Errorf("parseInstant(%q): %v", s, err)
			continue
		}
		if ts.UTC().Format("2006-01-02T15") != "2024-03-01T00" {
			t.Errorf("parseInstant(%q) = %v", s, ts.UTC())
		}
	}
}

func isMissing(field string) func(error) bool {
	return func(err error) bool {
		var e *MissingFieldError
		return errors.As(err, &e) && e.Field == field
	}
}

func isInvalid(field string) func(error) bool {
	return func(err error) bool {
		var e *InvalidFieldError
		return errors.As(err, &e) && e.Field == field
	}
}
