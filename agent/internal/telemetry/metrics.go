package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder collects the agent's own metrics.
type Recorder interface {
	ObserveExecution(job string, success bool, d time.Duration)
	IncSinkFailures(sink string)
	IncClientConstructions()
	SetClients(n int)
	SetScheduledJobs(n int)
}

var _ Recorder = (*Service)(nil)

// Service holds all the Prometheus metrics of the agent.
type Service struct {
	JobExecutions       *prometheus.CounterVec
	JobDuration         *prometheus.HistogramVec
	SinkFailures        *prometheus.CounterVec
	ClientConstructions prometheus.Counter
	Clients             prometheus.Gauge
	ScheduledJobs       prometheus.Gauge
}

// NewService creates and registers the metrics on reg.
func NewService(reg prometheus.Registerer) *Service {
	s := &Service{
		JobExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_job_executions_total",
			Help: "Scrape job executions by outcome.",
		}, []string{"job", "outcome"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_job_duration_seconds",
			Help:    "Duration of one scrape job execution.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		SinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_sink_write_failures_total",
			Help: "Measurements a sink failed to write.",
		}, []string{"sink"}),
		ClientConstructions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_monitor_client_constructions_total",
			Help: "Monitoring API clients constructed.",
		}),
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scraper_monitor_clients",
			Help: "Monitoring API clients currently cached.",
		}),
		ScheduledJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scraper_scheduled_jobs",
			Help: "Scrape jobs registered with the scheduler.",
		}),
	}

	reg.MustRegister(
		s.JobExecutions,
		s.JobDuration,
		s.SinkFailures,
		s.ClientConstructions,
		s.Clients,
		s.ScheduledJobs,
	)
	return s
}

func (s *Service) ObserveExecution(job string, success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	s.JobExecutions.WithLabelValues(job, outcome).Inc()
	s.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (s *Service) IncSinkFailures(sink string) {
	s.SinkFailures.WithLabelValues(sink).Inc()
}

func (s *Service) IncClientConstructions() {
	s.ClientConstructions.Inc()
}

func (s *Service) SetClients(n int) {
	s.Clients.Set(float64(n))
}

func (s *Service) SetScheduledJobs(n int) {
	s.ScheduledJobs.Set(float64(n))
}

// Nop discards all metrics.
type Nop struct{}

func (Nop) ObserveExecution(string, bool, time.Duration) {}
func (Nop) IncSinkFailures(string)                       {}
func (Nop) IncClientConstructions()                      {}
func (Nop) SetClients(int)                               {}
func (Nop) SetScheduledJobs(int)                         {}
