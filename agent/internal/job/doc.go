// Package job runs one collection cycle for one scrape definition: query the
// monitoring API through the definition's client, convert every returned
// value into a measurement and publish it to the sink fanout.
//
// A cycle has no internal retry. Client errors, empty results and malformed
// responses are returned to the caller (the scheduler), which logs them and
// keeps the job scheduled for its next firing.
package job
