// Package scrape expands a metrics declaration into scrape definitions.
//
// A definition is one (metric, resource) pair with everything needed to
// collect it on its own schedule: the effective subscription and resource
// group after applying per-resource overrides, the client identity, and a
// stable job name of the form {subscription}-{metric}.
//
// Build is pure apart from logging. Its output order follows the declaration:
// metrics in order, and within a metric, resources in order. When two
// definitions would share a job name, the later ones get an ordinal suffix
// (-2, -3, ...) so every name stays unique.
package scrape
