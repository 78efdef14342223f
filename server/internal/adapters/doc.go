// Package adapters groups the data producers registered with the datasource
// engine. Each subpackage owns one scope:
//
//	gitlab          commits, pipelines, issues, merge requests, milestones, members
//	prometheus      metric families and TLS certificates of exposition endpoints
//	static          variables defined in the config file
//	buildinfo       the deployed revision (scope vision_control)
//
// Adapters validate their own payloads with the payload package and report
// bad input with the datasource error types so the API answers 400.
package adapters
