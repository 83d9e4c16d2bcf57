package agent

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/obsidianstack/scraper/agent/internal/catalog"
	"github.com/obsidianstack/scraper/agent/internal/job"
	"github.com/obsidianstack/scraper/agent/internal/monitor"
	"github.com/obsidianstack/scraper/agent/internal/scheduler"
	"github.com/obsidianstack/scraper/agent/internal/scrape"
)

// Resolver returns the client of an identity. *monitor.Pool implements it.
type Resolver interface {
	Resolve(ctx context.Context, id monitor.Identity) (monitor.Client, error)
}

// Registrar accepts scheduler entries. *scheduler.Scheduler implements it.
type Registrar interface {
	Register(def scrape.Definition, exec scheduler.Execution) error
}

// Deps are the collaborators Assemble wires together.
type Deps struct {
	Pool      Resolver
	Fanout    job.Publisher
	Scheduler Registrar
	Logger    *slog.Logger
}

// Failure is a definition that could not be scheduled.
type Failure struct {
	Job string
	Err error
}

// Report summarizes a startup expansion.
type Report struct {
	Definitions int
	Scheduled   []string
	Failed      []Failure
}

// Assemble builds the scrape definitions of decl and registers one scheduler
// entry per definition. The returned error is non-nil only when definitions
// exist and none could be scheduled.
func Assemble(ctx context.Context, decl *catalog.Declaration, deps Deps) (Report, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Pool == nil || deps.Fanout == nil || deps.Scheduler == nil {
		return Report{}, errors.New("agent: pool, fanout and scheduler are required")
	}

	defs := scrape.Build(decl, logger)
	report := Report{Definitions: len(defs)}

	for _, def := range defs {
		client, err := deps.Pool.Resolve(ctx, def.Identity())
		if err != nil {
			logger.Error("agent: monitor client unavailable, job skipped",
				"job", def.JobName, "identity", def.Identity().String(), "err", err)
			report.Failed = append(report.Failed, Failure{Job: def.JobName, Err: err})
			continue
		}

		if err := deps.Scheduler.Register(def, execution(def, client, deps.Fanout, logger)); err != nil {
			logger.Error("agent: job not scheduled", "job", def.JobName, "err", err)
			report.Failed = append(report.Failed, Failure{Job: def.JobName, Err: err})
			continue
		}
		report.Scheduled = append(report.Scheduled, def.JobName)
	}

	if len(defs) > 0 && len(report.Scheduled) == 0 {
		return report, errors.Newf("agent: none of %d scrape definitions could be scheduled", len(defs))
	}
	logger.Info("agent: jobs scheduled",
		"definitions", report.Definitions,
		"scheduled", len(report.Scheduled),
		"failed", len(report.Failed))
	return report, nil
}

// execution binds one definition to its client and the fanout.
func execution(def scrape.Definition, client monitor.Client, fanout job.Publisher, logger *slog.Logger) scheduler.Execution {
	ec := job.ExecContext{
		Definition: def,
		Client:     client,
		Fanout:     fanout,
		Logger:     logger,
	}
	return func(ctx context.Context) error {
		return job.Execute(ctx, ec)
	}
}
