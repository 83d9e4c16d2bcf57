// Package api implements the agent's HTTP REST API.
//
// New(sources) returns an http.Handler that serves:
//
//	GET  /api/v1/health           overall status, job/client/sink/series counts
//	GET  /api/v1/jobs             status of every scheduled job
//	GET  /api/v1/jobs/{name}      status of one job; 404 if unknown
//	POST /api/v1/jobs/{name}/run  run one job now and return its result
//
// All endpoints respond with Content-Type: application/json and return 405
// for unsupported methods. The status is "unknown" while no job is scheduled,
// "degraded" while any job's latest run failed, and "ok" otherwise.
package api
