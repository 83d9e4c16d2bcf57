// Package statsd pushes measurements to a StatsD daemon as gauges.
package statsd

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/cockroachdb/errors"

	"github.com/obsidianstack/scraper/agent/internal/config"
	"github.com/obsidianstack/scraper/pkg/types"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("statsd: sink closed")

// gaugeClient is the subset of *statsd.Client the sink uses.
type gaugeClient interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Close() error
}

// Sink writes every measurement as a StatsD gauge.
type Sink struct {
	client gaugeClient
	closed atomic.Bool
}

// New dials the StatsD daemon described by cfg. The metric prefix becomes the
// client namespace.
func New(cfg config.StatsdSinkConfig) (*Sink, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	var opts []statsd.Option
	if p := cfg.MetricPrefix; p != "" {
		if !strings.HasSuffix(p, ".") {
			p += "."
		}
		opts = append(opts, statsd.WithNamespace(p))
	}

	c, err := statsd.New(addr, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "statsd: dial %s", addr)
	}
	return &Sink{client: c}, nil
}

// Name implements sink.Sink.
func (s *Sink) Name() string { return "statsd" }

// Critical reports that StatsD failures are logged at CRITICAL.
//
// The client buffers gauges and sends them from a background goroutine, so a
// failed UDP send is dropped by the client and never returned from Write.
// Only local failures surface here: a closed sink or a client-side error.
func (s *Sink) Critical() bool { return true }

// Write implements sink.Sink.
func (s *Sink) Write(_ context.Context, m types.Measurement) error {
	if s.closed.Load() {
		return errors.Wrapf(ErrClosed, "statsd: gauge %s", m.Name)
	}
	names := m.LabelNames()
	tags := make([]string, 0, len(names))
	for _, k := range names {
		tags = append(tags, k+":"+m.Labels[k])
	}
	if err := s.client.Gauge(m.Name, m.Value, tags, 1); err != nil {
		return errors.Wrapf(err, "statsd: gauge %s", m.Name)
	}
	return nil
}

// Close flushes buffered metrics and releases the socket.
func (s *Sink) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}
