// Package health serves the standard gRPC health service (grpc.health.v1)
// for the agent, so orchestrators can probe it with grpc_health_probe.
//
// The overall status ("") and the "scraper" service report SERVING once the
// scheduler is running and NOT_SERVING during shutdown.
//
// When auth mode is "apikey" and a key is configured, every call must carry
// the key in the configured metadata header; otherwise the call fails with
// codes.Unauthenticated. Both unary (Check) and streaming (Watch) calls are
// checked.
package health
