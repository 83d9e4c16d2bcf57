// Package agent turns a metrics declaration into running scrape jobs.
//
// Assemble is the startup expansion: build one scrape definition per
// (metric, resource) pair, resolve the monitoring client of each definition
// through the shared pool, and register one scheduler entry whose execution
// runs a collection cycle with that client and the sink fanout.
//
// A definition whose client cannot be created is skipped and reported; the
// remaining definitions are still scheduled. Startup fails only when the
// declaration yields definitions and none of them could be scheduled.
package agent
