// Package api implements the HTTP side of the Grafana JSON datasource protocol.
//
// New(engine, corsOrigin) returns an http.Handler that serves:
//
//	GET|POST /          connection test, {"status":"ok"}
//	GET|POST /search    every queryable "scope-metric" identifier
//	POST     /query     one result per target, table or time series
//	POST     /variable  [{"__text", "__value"}] options of one variable
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Answer OPTIONS preflights with CORS headers and 200
//   - Return 405 for other methods and 404 for unknown paths
//   - Echo or assign an X-Request-ID header
//
// Errors are rendered as {"error": message}. Request errors from the datasource
// package map to 400, an unsupported result shape to 500 and any other callback
// failure to 502. No external HTTP framework is used.
package api
