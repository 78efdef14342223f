// Package datasource implements the dispatch engine behind the Grafana JSON
// datasource endpoints.
//
// A Registry maps (scope, name) pairs to metric and variable callbacks. The
// Engine validates incoming query and variable documents, resolves each
// request through the registry, invokes the callback and normalizes its result
// into the wire format:
//
//	search    "scope-metric" identifiers of every registered metric
//	query     one table or time series per target, in target order
//	variable  [{__text, __value}] options in callback order
//
// Validation failures, unknown scopes and unknown callbacks are request errors
// (see IsRequestError). A callback returning an unknown result shape is a
// server defect and is reported as *UnsupportedResultShapeError.
//
// Scope and metric names must not contain "-": it separates the two halves of
// a target identifier.
package datasource
