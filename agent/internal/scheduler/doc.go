// Package scheduler runs one recurring entry per scrape definition.
//
// Each entry has a cron schedule (robfig/cron dialect, see
// catalog.ParseSchedule) and optionally fires once as soon as the scheduler
// starts. Entries fire independently; two firings of the same entry never
// overlap, a late firing waits for the running one to finish.
//
// Every firing goes through the same wrapper: it gets a run id, an optional
// timeout, and a recover so a panicking execution becomes an error. A failed
// run is logged at telemetry.LevelCritical with the job name and error and is
// recorded in the entry status. Failures never deregister an entry and never
// reach the process: the entry simply fires again on its next tick.
//
// Stop halts all triggers and returns a context that is done once every
// in-flight execution has returned.
package scheduler
