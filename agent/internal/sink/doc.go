// Package sink delivers collected measurements to their destinations.
//
// A Sink writes one measurement to one destination. Fanout holds every
// configured sink and hands each measurement to all of them concurrently.
// Delivery is best effort: a sink that errors, panics or stalls does not
// keep the others from receiving the value, and Publish never fails. Write
// failures are logged per sink and counted in the agent's self metrics.
//
// Concrete sinks live in subpackages (statsd, pubsub, stream). The
// exposition store also implements Sink and is always part of the fanout.
package sink
