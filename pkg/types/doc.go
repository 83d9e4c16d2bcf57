// Package types defines shared Go types passed between the scrape jobs and
// the output sinks. Measurement is the canonical in-memory representation of
// one collected value, independent of how any sink encodes it on the wire.
package types
