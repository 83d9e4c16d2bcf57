package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"

	"github.com/obsidianstack/scraper/agent/internal/telemetry"
)

// Pool caches one Client per Identity for the lifetime of the process.
//
// All exported methods are safe for concurrent use.
type Pool struct {
	factory Factory
	logger  *slog.Logger
	metrics telemetry.Recorder

	mu      sync.Mutex
	clients map[Identity]Client

	// inflight collapses concurrent constructions of the same identity so a
	// slow construction never holds mu and never blocks other identities.
	inflight singleflight.Group
}

// NewPool returns an empty Pool that constructs clients with factory.
func NewPool(factory Factory, logger *slog.Logger, metrics telemetry.Recorder) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	return &Pool{
		factory: factory,
		logger:  logger,
		metrics: metrics,
		clients: make(map[Identity]Client),
	}
}

// Resolve returns the Client for id, constructing it if no client exists yet.
// An existing client is returned unchanged with no side effects.
//
// The construction does not inherit ctx cancellation: a caller that gives up
// returns ctx.Err() while other callers keep waiting for the same result.
func (p *Pool) Resolve(ctx context.Context, id Identity) (Client, error) {
	if c, ok := p.lookup(id); ok {
		return c, nil
	}

	ch := p.inflight.DoChan(flightKey(id), func() (interface{}, error) {
		return p.construct(context.WithoutCancel(ctx), id)
	})
	select {
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "monitor: resolve client for %s", id)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Client), nil
	}
}

func (p *Pool) construct(ctx context.Context, id Identity) (_ interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("monitor: create client for %s: panic: %v", id, r)
		}
	}()

	// A construction may have completed between lookup and DoChan.
	if c, ok := p.lookup(id); ok {
		return c, nil
	}

	c, err := p.factory(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "monitor: create client for %s", id)
	}
	if c == nil {
		return nil, errors.Newf("monitor: factory returned no client for %s", id)
	}

	p.mu.Lock()
	p.clients[id] = c
	n := len(p.clients)
	p.mu.Unlock()

	p.metrics.IncClientConstructions()
	p.metrics.SetClients(n)
	p.logger.Info("monitor: client created",
		"cloud", id.Cloud, "tenant", id.TenantID, "subscription", id.SubscriptionID)
	return c, nil
}

// Len returns the number of cached clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Identities returns the identities with a cached client.
func (p *Pool) Identities() []Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Identity, 0, len(p.clients))
	for id := range p.clients {
		out = append(out, id)
	}
	return out
}

func (p *Pool) lookup(id Identity) (Client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clients[id]
	return c, ok
}

// flightKey is unambiguous even when fields contain separators.
func flightKey(id Identity) string {
	return fmt.Sprintf("%q|%q|%q", id.Cloud, id.TenantID, id.SubscriptionID)
}
