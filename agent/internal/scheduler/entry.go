package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/obsidianstack/scraper/agent/internal/scrape"
)

// Status is a point-in-time view of one entry.
type Status struct {
	Job            string    `json:"job"`
	Metric         string    `json:"metric"`
	ResourceURI    string    `json:"resource_uri"`
	SubscriptionID string    `json:"subscription_id"`
	Schedule       string    `json:"schedule"`
	RunImmediately bool      `json:"run_immediately"`
	Runs           int       `json:"runs"`
	Failures       int       `json:"failures"`
	LastRunID      string    `json:"last_run_id,omitempty"`
	LastRun        time.Time `json:"last_run"`
	LastDuration   float64   `json:"last_duration_seconds"`
	LastError      string    `json:"last_error,omitempty"`
	Next           time.Time `json:"next_run"`
}

// Healthy reports whether the entry has not failed its latest run.
func (s Status) Healthy() bool { return s.LastError == "" }

type entry struct {
	def      scrape.Definition
	schedule cron.Schedule
	exec     Execution
	cronID   cron.EntryID // guarded by Scheduler.mu

	// runMu serializes runs of this entry.
	runMu sync.Mutex

	mu   sync.Mutex
	last Result
	runs int
	fail int
}

func (e *entry) record(res Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = res
	e.runs++
	if !res.OK() {
		e.fail++
	}
}

func (e *entry) snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		Job:            e.def.JobName,
		Metric:         e.def.Metric.Name,
		ResourceURI:    e.def.Resource.ResourceURI,
		SubscriptionID: e.def.SubscriptionID,
		Schedule:       e.def.Schedule.Cron,
		RunImmediately: e.def.Schedule.RunImmediately,
		Runs:           e.runs,
		Failures:       e.fail,
	}
	if e.runs > 0 {
		st.LastRunID = e.last.RunID
		st.LastRun = e.last.Started
		st.LastDuration = e.last.Duration.Seconds()
		if e.last.Err != nil {
			st.LastError = e.last.Err.Error()
		}
	}
	return st
}
