// Package exposition holds the latest value of every collected series and
// serves them on the Prometheus scrape endpoint.
//
// The Store is always part of the sink fanout. It keeps one entry per series
// (metric name plus label set), replaced on every collection, and evicts
// entries that have not been refreshed within the TTL so series of removed
// resources disappear from the endpoint.
//
// Store implements prometheus.Collector as an unchecked collector: series are
// only known at runtime, so Describe sends nothing and Collect emits one
// constant gauge per live entry. Register it on a prometheus.Registry and
// serve the registry with Handler.
package exposition
