package exposition

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/obsidianstack/scraper/pkg/types"
)

// Entry is a measurement together with the time it was last stored.
type Entry struct {
	Measurement types.Measurement
	UpdatedAt   time.Time
}

// Options tunes a Store.
type Options struct {
	// EnableTimestamps exports each sample with its collection timestamp.
	EnableTimestamps bool

	Logger *slog.Logger
}

// Store is a thread-safe latest-value store keyed by series.
// A background goroutine (Run) periodically evicts entries older than the TTL.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests

	timestamps bool
	logger     *slog.Logger
}

// New creates a Store with the given TTL.
func New(ttl time.Duration, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		data:       make(map[string]*Entry),
		ttl:        ttl,
		now:        time.Now,
		timestamps: opts.EnableTimestamps,
		logger:     opts.Logger,
	}
}

// Put stores or replaces the value of m's series.
func (s *Store) Put(m types.Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[m.Key()] = &Entry{
		Measurement: m,
		UpdatedAt:   s.now(),
	}
}

// Get returns the entry for a series key (see types.Measurement.Key). The
// entry may be stale if the TTL has elapsed.
func (s *Store) Get(key string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[key]
	return e, ok
}

// List returns the entries updated within the TTL, sorted by series key.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Measurement.Key() < out[j].Measurement.Key()
	})
	return out
}

// Count returns the number of entries held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries whose UpdatedAt is older than now minus TTL and
// returns how many were removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for key, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, key)
			removed++
		}
	}
	return removed
}

// Run evicts stale entries every half TTL (minimum 1 second) until ctx is
// cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				s.logger.Debug("exposition: evicted stale series", "count", n)
			}
		}
	}
}

// Name implements sink.Sink.
func (s *Store) Name() string { return "prometheus" }

// Write implements sink.Sink. It never fails.
func (s *Store) Write(_ context.Context, m types.Measurement) error {
	s.Put(m)
	return nil
}

// Describe implements prometheus.Collector. Sending no descriptors makes the
// store an unchecked collector.
func (s *Store) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (s *Store) Collect(ch chan<- prometheus.Metric) {
	for _, e := range s.List() {
		m := e.Measurement
		names := m.LabelNames()
		values := make([]string, len(names))
		for i, k := range names {
			values[i] = m.Labels[k]
		}

		desc := prometheus.NewDesc(m.Name, m.Description, names, nil)
		metric, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, m.Value, values...)
		if err != nil {
			ch <- prometheus.NewInvalidMetric(desc, err)
			continue
		}
		if s.timestamps && !m.Timestamp.IsZero() {
			metric = prometheus.NewMetricWithTimestamp(m.Timestamp, metric)
		}
		ch <- metric
	}
}

// Handler serves g in the Prometheus exposition format. A series that fails
// to gather is skipped, logged at ERROR, and the rest are still served.
func Handler(g prometheus.Gatherer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		ErrorLog:      errorLog{logger: logger},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// errorLog adapts slog to promhttp.Logger.
type errorLog struct{ logger *slog.Logger }

func (l errorLog) Println(v ...interface{}) {
	l.logger.Error("exposition: series dropped", "err", strings.TrimSpace(fmt.Sprintln(v...)))
}
