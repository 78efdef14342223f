package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/visioncontrol/visioncontrol/pkg/types"
)

// QueryRequest is the body of a query request. Fields are kept raw so that
// a malformed value is reported against its field rather than as an
// undecodable body.
type QueryRequest struct {
	Range   json.RawMessage `json:"range"`
	Targets json.RawMessage `json:"targets"`
}

// Range is the requested time window. Both bounds are ISO-8601 instants with
// fractional seconds and an explicit UTC offset.
type Range struct {
	From json.RawMessage `json:"from"`
	To   json.RawMessage `json:"to"`
}

// Target is one requested metric.
type Target struct {
	Target  json.RawMessage `json:"target"`
	RefID   json.RawMessage `json:"refId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// QueryResponse is one element of a query response: a *TableResponse or a
// *TimeSeriesResponse.
type QueryResponse interface {
	Ref() string
}

// ColumnResponse describes one table column on the wire.
type ColumnResponse struct {
	Text string           `json:"text"`
	Type types.ColumnType `json:"type"`
}

// TableResponse is the wire form of a table result.
type TableResponse struct {
	RefID   string           `json:"refId"`
	Columns []ColumnResponse `json:"columns"`
	Rows    [][]any          `json:"rows"`
	Type    string           `json:"type"`
}

// Ref implements QueryResponse.
func (r *TableResponse) Ref() string { return r.RefID }

// TimeSeriesResponse is the wire form of a time series result.
type TimeSeriesResponse struct {
	RefID      string        `json:"refId"`
	Target     string        `json:"target"`
	Datapoints []types.Point `json:"datapoints"`
}

// Ref implements QueryResponse.
func (r *TimeSeriesResponse) Ref() string { return r.RefID }

// Query runs every target of req against the registry and returns one
// response per target, in order. The first error aborts the whole request.
func (e *Engine) Query(ctx context.Context, req QueryRequest) ([]QueryResponse, error) {
	iv, err := parseRange(req.Range)
	if err != nil {
		return nil, err
	}
	targets, err := parseTargets(req.Targets)
	if err != nil {
		return nil, err
	}

	out := make([]QueryResponse, 0, len(targets))
	for _, t := range targets {
		resp, err := e.queryTarget(ctx, t, iv)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

// parseTargets decodes the target list. An absent list is empty.
func parseTargets(raw json.RawMessage) ([]Target, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, &InvalidFieldError{Field: "targets", Value: string(raw)}
	}
	targets := make([]Target, len(elems))
	for i, elem := range elems {
		if err := json.Unmarshal(elem, &targets[i]); err != nil {
			return nil, &InvalidFieldError{Field: "targets", Value: string(elem)}
		}
	}
	return targets, nil
}

// stringField reads a required, non-empty string.
func stringField(field string, raw json.RawMessage) (string, error) {
	if isAbsent(raw) {
		return "", &MissingFieldError{Field: field}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &InvalidFieldError{Field: field, Value: string(raw)}
	}
	if s == "" {
		return "", &MissingFieldError{Field: field}
	}
	return s, nil
}

func (e *Engine) queryTarget(ctx context.Context, t Target, iv types.Interval) (QueryResponse, error) {
	id, err := stringField("target", t.Target)
	if err != nil {
		return nil, err
	}
	refID, err := stringField("refId", t.RefID)
	if err != nil {
		return nil, err
	}

	scope, metric, ok := ParseIdentifier(id)
	if !ok {
		return nil, &InvalidFieldError{Field: "target", Value: id}
	}

	fn, err := e.registry.Metric(scope, metric)
	if err != nil {
		return nil, err
	}

	res, err := fn(ctx, decodeObject(t.Payload), iv)
	if err != nil {
		return nil, err
	}
	return buildResponse(refID, id, res)
}

// buildResponse renders a callback result in its wire form.
func buildResponse(refID, target string, res types.Result) (QueryResponse, error) {
	switch r := res.(type) {
	case *types.Table:
		if r == nil {
			break
		}
		cols := make([]ColumnResponse, len(r.Columns))
		for i, c := range r.Columns {
			cols[i] = ColumnResponse{Text: c.Name, Type: c.Type}
		}
		rows := r.Rows
		if rows == nil {
			rows = [][]any{}
		}
		slog.Debug("datasource: returning table", "target", target, "rows", len(rows))
		return &TableResponse{RefID: refID, Columns: cols, Rows: rows, Type: types.ShapeTable}, nil

	case *types.TimeSeries:
		if r == nil {
			break
		}
		points := r.Points
		if points == nil {
			points = []types.Point{}
		}
		slog.Debug("datasource: returning timeseries", "target", target, "datapoints", len(points))
		return &TimeSeriesResponse{RefID: refID, Target: target, Datapoints: points}, nil
	}
	return nil, &UnsupportedResultShapeError{Shape: shapeOf(res)}
}

func shapeOf(res types.Result) string {
	if res == nil {
		return "nil"
	}
	return fmt.Sprintf("%T (%s)", res, res.Shape())
}

func parseRange(raw json.RawMessage) (types.Interval, error) {
	if isAbsent(raw) {
		return types.Interval{}, &MissingFieldError{Field: "range"}
	}
	var r Range
	if err := json.Unmarshal(raw, &r); err != nil {
		return types.Interval{}, &InvalidFieldError{Field: "range", Value: string(raw)}
	}
	start, err := parseInstant("range.from", r.From)
	if err != nil {
		return types.Interval{}, err
	}
	end, err := parseInstant("range.to", r.To)
	if err != nil {
		return types.Interval{}, err
	}
	return types.Interval{Start: start, End: end}, nil
}

// parseInstant accepts instants like 2024-01-02T15:04:05.123456+02:00 or
// 2024-01-02T15:04:05.123Z. The fractional part and the offset are required.
func parseInstant(field string, raw json.RawMessage) (time.Time, error) {
	if isAbsent(raw) {
		return time.Time{}, &MissingFieldError{Field: field}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, &InvalidFieldError{Field: field, Value: string(raw)}
	}
	// "2006-01-02T15:04:05" is 19 bytes; a '.' must follow.
	if len(s) < 21 || s[19] != '.' {
		return time.Time{}, &InvalidFieldError{Field: field, Value: s}
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, &InvalidFieldError{Field: field, Value: s}
	}
	return ts, nil
}
