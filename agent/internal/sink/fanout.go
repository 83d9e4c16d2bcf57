package sink

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/obsidianstack/scraper/agent/internal/telemetry"
	"github.com/obsidianstack/scraper/pkg/types"
)

// Sink writes measurements to one destination. Implementations must be safe
// for concurrent use.
type Sink interface {
	Name() string
	Write(ctx context.Context, m types.Measurement) error
}

// Critical is implemented by sinks whose write failures are logged at
// telemetry.LevelCritical instead of ERROR.
type Critical interface {
	Critical() bool
}

// Fanout publishes every measurement to all of its sinks.
type Fanout struct {
	sinks   []Sink
	logger  *slog.Logger
	metrics telemetry.Recorder
}

// NewFanout returns a Fanout over sinks. Nil sinks are ignored.
func NewFanout(logger *slog.Logger, metrics telemetry.Recorder, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	f := &Fanout{logger: logger, metrics: metrics}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Publish writes m to every sink and waits for all of them. Failures are
// logged and counted, never returned.
func (f *Fanout) Publish(ctx context.Context, m types.Measurement) {
	switch len(f.sinks) {
	case 0:
		return
	case 1:
		f.write(ctx, f.sinks[0], m)
		return
	}

	var wg sync.WaitGroup
	for _, s := range f.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			f.write(ctx, s, m)
		}(s)
	}
	wg.Wait()
}

// Sinks returns the names of the configured sinks in registration order.
func (f *Fanout) Sinks() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return names
}

func (f *Fanout) write(ctx context.Context, s Sink, m types.Measurement) {
	err := safeWrite(ctx, s, m)
	if err == nil {
		return
	}

	f.metrics.IncSinkFailures(s.Name())
	level := slog.LevelError
	if c, ok := s.(Critical); ok && c.Critical() {
		level = telemetry.LevelCritical
	}
	f.logger.Log(ctx, level, "sink: write failed",
		"sink", s.Name(), "metric", m.Name, "err", err)
}

func safeWrite(ctx context.Context, s Sink, m types.Measurement) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("sink %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Write(ctx, m)
}
