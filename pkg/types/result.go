package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Shape names reported by Result.Shape.
const (
	ShapeTable      = "table"
	ShapeTimeSeries = "timeseries"
)

// Result is the value a metric callback produces. The engine only knows how
// to render *Table and *TimeSeries; any other implementation is rejected.
type Result interface {
	Shape() string
}

// ColumnType is the declared type of a table column.
type ColumnType uint8

const (
	ColumnString ColumnType = iota
	ColumnBoolean
	ColumnJSON
	ColumnNumeric
	ColumnTime
)

// String returns the wire tag of the column type.
func (t ColumnType) String() string {
	switch t {
	case ColumnBoolean:
		return "bool"
	case ColumnJSON:
		return "json"
	case ColumnNumeric:
		return "numeric"
	case ColumnTime:
		return "time"
	default:
		return "string"
	}
}

// MarshalJSON encodes the column type as its wire tag.
func (t ColumnType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Column declares one column of a Table.
type Column struct {
	Name string
	Type ColumnType
}

// Table is a columnar result. Every row should carry one value per column,
// in column order.
type Table struct {
	Columns []Column
	Rows    [][]any
}

// NewTable returns an empty table with the given columns.
func NewTable(columns ...Column) *Table {
	return &Table{Columns: columns, Rows: make([][]any, 0)}
}

// Append adds one row. It does not check the row against the columns.
func (t *Table) Append(values ...any) {
	t.Rows = append(t.Rows, values)
}

// Shape implements Result.
func (t *Table) Shape() string { return ShapeTable }

// Point is one time series sample. It is encoded as [value, epoch_millis].
type Point struct {
	Value float64
	Time  int64 // unix milliseconds
}

// MarshalJSON encodes the point as a two-element array, value first.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Value, p.Time})
}

// UnmarshalJSON decodes a [value, epoch_millis] pair.
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw []float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("types: point must have 2 elements, got %d", len(raw))
	}
	p.Value = raw[0]
	p.Time = int64(raw[1])
	return nil
}

// At builds a Point for value at time ts.
func At(value float64, ts time.Time) Point {
	return Point{Value: value, Time: UnixMillis(ts)}
}

// TimeSeries is an ordered sequence of points.
type TimeSeries struct {
	Points []Point
}

// Shape implements Result.
func (s *TimeSeries) Shape() string { return ShapeTimeSeries }

// Interval is the time window requested by a query. It is built once per
// request and shared by every target of that request.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether ts falls in [Start, End).
func (iv Interval) Contains(ts time.Time) bool {
	return !ts.Before(iv.Start) && ts.Before(iv.End)
}

// UnixMillis converts ts to milliseconds since the epoch.
func UnixMillis(ts time.Time) int64 {
	return ts.UnixMilli()
}
