// Package types defines the result model shared by the datasource engine and
// the data producers registered with it: the two canonical result shapes
// (Table and TimeSeries), the query Interval, and the ordered Options a
// variable callback returns.
//
// Producers build one of these values; the engine turns it into the wire
// format expected by the dashboard. Rows and points are not validated against
// their declared schema here.
package types
