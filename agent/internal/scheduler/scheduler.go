package scheduler

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/obsidianstack/scraper/agent/internal/catalog"
	"github.com/obsidianstack/scraper/agent/internal/scrape"
	"github.com/obsidianstack/scraper/agent/internal/telemetry"
)

var (
	// ErrDuplicateJob is returned by Register for a job name already registered.
	ErrDuplicateJob = errors.New("duplicate job name")

	// ErrUnknownJob is returned by Trigger for a job name never registered.
	ErrUnknownJob = errors.New("unknown job")

	// ErrStopped is returned by Register and Trigger after Stop.
	ErrStopped = errors.New("scheduler stopped")
)

// Execution is one run of a scheduled job.
type Execution func(ctx context.Context) error

// Options configures a Scheduler.
type Options struct {
	Logger  *slog.Logger
	Metrics telemetry.Recorder

	// ExecutionTimeout bounds every run. Zero means no bound.
	ExecutionTimeout time.Duration
}

// Result is the outcome of one run.
type Result struct {
	Job      string
	RunID    string
	Started  time.Time
	Duration time.Duration
	Err      error
}

// OK reports whether the run succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Scheduler owns the scheduled entries. The zero value is not usable; call New.
type Scheduler struct {
	logger  *slog.Logger
	metrics telemetry.Recorder
	timeout time.Duration
	cron    *cron.Cron

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	ctx     context.Context // set by Start
	started bool
	stopped bool

	// inflight tracks firings that run outside cron: run-immediately and
	// manual. Add is only called under mu while stopped is false.
	inflight sync.WaitGroup
}

// New returns a Scheduler with no entries.
func New(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.Nop{}
	}
	return &Scheduler{
		logger:  opts.Logger,
		metrics: opts.Metrics,
		timeout: opts.ExecutionTimeout,
		cron: cron.New(
			cron.WithParser(catalog.ScheduleParser),
			cron.WithLogger(cronLogger{opts.Logger}),
		),
		entries: make(map[string]*entry),
	}
}

// Register adds one entry for def. If the scheduler is already running the
// entry is armed at once, including its run-immediately firing.
func (s *Scheduler) Register(def scrape.Definition, exec Execution) error {
	if exec == nil {
		return errors.Newf("scheduler: %s: nil execution", def.JobName)
	}
	sched, err := catalog.ParseSchedule(def.Schedule.Cron)
	if err != nil {
		return errors.Wrapf(err, "scheduler: %s", def.JobName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errors.Wrapf(ErrStopped, "scheduler: %s", def.JobName)
	}
	if _, ok := s.entries[def.JobName]; ok {
		return errors.Wrapf(ErrDuplicateJob, "scheduler: %s", def.JobName)
	}

	e := &entry{def: def, schedule: sched, exec: exec}
	s.entries[def.JobName] = e
	s.order = append(s.order, def.JobName)
	s.metrics.SetScheduledJobs(len(s.entries))

	if s.started {
		s.arm(e)
	}
	s.logger.Debug("scheduler: job registered",
		"job", def.JobName, "schedule", def.Schedule.Cron, "run_immediately", def.Schedule.RunImmediately)
	return nil
}

// Start fires every run-immediately entry once and arms the cron triggers.
// ctx is the parent of every execution context. Start returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.ctx = ctx
	s.started = true
	for _, name := range s.order {
		s.arm(s.entries[name])
	}
	s.cron.Start()
	s.logger.Info("scheduler: started", "jobs", len(s.entries))
}

// arm schedules e with cron and launches its immediate firing. s.mu must be held.
func (s *Scheduler) arm(e *entry) {
	ctx := s.ctx
	e.cronID = s.cron.Schedule(e.schedule, cron.FuncJob(func() {
		s.fire(ctx, e)
	}))
	if e.def.Schedule.RunImmediately {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.fire(ctx, e)
		}()
	}
}

// Trigger fires the named entry now, through the same wrapper as scheduled
// firings, and returns its result. After Stop it returns ErrStopped.
func (s *Scheduler) Trigger(ctx context.Context, name string) (Result, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return Result{}, errors.Wrapf(ErrStopped, "scheduler: %s", name)
	}
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return Result{}, errors.Wrapf(ErrUnknownJob, "scheduler: %s", name)
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	defer s.inflight.Done()
	return s.fire(ctx, e), nil
}

// Stop halts all triggers. The returned context is done once every running
// execution has returned. Stop is idempotent.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	wasStarted := s.started
	s.stopped = true
	s.mu.Unlock()

	var cronDone <-chan struct{}
	if wasStarted {
		cronDone = s.cron.Stop().Done()
	}

	done, cancel := context.WithCancel(context.Background())
	go func() {
		if cronDone != nil {
			<-cronDone
		}
		s.inflight.Wait()
		cancel()
	}()
	return done
}

// Len returns the number of registered entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns the status of every entry in registration order.
func (s *Scheduler) Entries() []Status {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.order))
	for _, name := range s.order {
		entries = append(entries, s.entries[name])
	}
	s.mu.Unlock()

	out := make([]Status, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.status(e))
	}
	return out
}

// Entry returns the status of the named entry.
func (s *Scheduler) Entry(name string) (Status, bool) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	return s.status(e), true
}

func (s *Scheduler) status(e *entry) Status {
	st := e.snapshot()
	s.mu.Lock()
	id := e.cronID
	s.mu.Unlock()
	if id != 0 {
		st.Next = s.cron.Entry(id).Next
	}
	return st
}

// fire runs e once. Runs of the same entry are serialized.
func (s *Scheduler) fire(ctx context.Context, e *entry) Result {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	res := Result{
		Job:     e.def.JobName,
		RunID:   uuid.NewString(),
		Started: time.Now(),
	}

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	res.Err = safeRun(runCtx, e.exec)
	res.Duration = time.Since(res.Started)

	e.record(res)
	s.metrics.ObserveExecution(res.Job, res.OK(), res.Duration)
	s.report(ctx, res)
	return res
}

// report logs the outcome of a run. A failure is marked handled here and
// goes no further.
func (s *Scheduler) report(ctx context.Context, res Result) {
	switch {
	case res.OK():
		s.logger.Debug("scheduler: job succeeded",
			"job", res.Job, "run_id", res.RunID, "duration", res.Duration)
	case ctx.Err() != nil && errors.Is(res.Err, context.Canceled):
		s.logger.Info("scheduler: job cancelled", "job", res.Job, "run_id", res.RunID)
	default:
		s.logger.Log(ctx, telemetry.LevelCritical, "scheduler: job failed",
			"job", res.Job, "run_id", res.RunID, "duration", res.Duration, "err", res.Err)
	}
}

func safeRun(ctx context.Context, exec Execution) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return exec(ctx)
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("scheduler: cron "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("scheduler: cron "+msg, append(keysAndValues, "err", err)...)
}
