package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/scraper/agent/internal/agent"
	"github.com/obsidianstack/scraper/agent/internal/api"
	"github.com/obsidianstack/scraper/agent/internal/catalog"
	"github.com/obsidianstack/scraper/agent/internal/config"
	"github.com/obsidianstack/scraper/agent/internal/exposition"
	"github.com/obsidianstack/scraper/agent/internal/health"
	"github.com/obsidianstack/scraper/agent/internal/monitor"
	"github.com/obsidianstack/scraper/agent/internal/scheduler"
	"github.com/obsidianstack/scraper/agent/internal/sink"
	"github.com/obsidianstack/scraper/agent/internal/sink/pubsub"
	"github.com/obsidianstack/scraper/agent/internal/sink/statsd"
	"github.com/obsidianstack/scraper/agent/internal/sink/stream"
	"github.com/obsidianstack/scraper/agent/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			envFile, _ := cmd.Flags().GetString("env-file")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath, envFile)
		},
	}
}

func run(ctx context.Context, configPath, envFile string) error {
	config.LoadEnv(envFile)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := telemetry.NewLogger(os.Stdout, cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("agent: starting", "config", configPath, "declaration", cfg.MetricsDeclaration.Path)

	decl, err := catalog.Load(cfg.MetricsDeclaration.Path)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewService(reg)

	store := exposition.New(cfg.Prometheus.MetricTTL, exposition.Options{
		EnableTimestamps: cfg.Prometheus.EnableMetricTimestamps,
		Logger:           logger,
	})
	reg.MustRegister(store)

	sinks, hub, closeSinks, err := buildSinks(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer closeSinks()
	fanout := sink.NewFanout(logger, metrics, sinks...)

	pool := monitor.NewPool(monitor.NewAzureFactory(monitor.AzureOptions{
		ClientID:     cfg.AzureMonitor.ClientID(),
		ClientSecret: cfg.AzureMonitor.ClientSecret(),
		LogRequests:  cfg.AzureMonitor.Logging.Enabled,
		Logger:       logger,
	}), logger, metrics)

	sched := scheduler.New(scheduler.Options{
		Logger:           logger,
		Metrics:          metrics,
		ExecutionTimeout: cfg.Scheduler.ExecutionTimeout,
	})

	report, err := agent.Assemble(ctx, decl, agent.Deps{
		Pool:      pool,
		Fanout:    fanout,
		Scheduler: sched,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	logger.Info("agent: ready",
		"jobs", len(report.Scheduled), "clients", pool.Len(), "sinks", fanout.Sinks())

	mux := http.NewServeMux()
	mux.Handle(cfg.Prometheus.ScrapeEndpointPath, exposition.Handler(reg, logger))
	mux.Handle("/api/", api.New(api.Sources{Jobs: sched, Clients: pool, Sinks: fanout, Series: store}))
	if hub != nil {
		mux.Handle("/ws/stream", hub)
	}
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var (
		hs      *health.Server
		grpcLis net.Listener
	)
	if cfg.Server.GRPCPort > 0 {
		grpcLis, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			return errors.Wrap(err, "agent: grpc listen")
		}
		hs = health.New(health.Options{
			Mode:   cfg.Server.Auth.Mode,
			Header: cfg.Server.Auth.EffectiveHeader(),
			Key:    cfg.Server.Auth.Key(),
			Logger: logger,
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("agent: HTTP listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "agent: http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if hs != nil {
		g.Go(func() error { return hs.Serve(grpcLis) })
		g.Go(func() error {
			<-gctx.Done()
			hs.Stop()
			return nil
		})
	}

	g.Go(func() error {
		store.Run(gctx)
		return nil
	})
	if hub != nil {
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		return config.Watch(gctx, configPath, func(*config.Config) {
			logger.Warn("agent: configuration changed, restart required", "path", configPath)
		})
	})
	g.Go(func() error {
		return config.WatchFile(gctx, cfg.MetricsDeclaration.Path, func() {
			if _, err := catalog.Load(cfg.MetricsDeclaration.Path); err != nil {
				logger.Error("agent: metrics declaration changed and is invalid",
					"path", cfg.MetricsDeclaration.Path, "err", err)
				return
			}
			logger.Warn("agent: metrics declaration changed, restart required",
				"path", cfg.MetricsDeclaration.Path)
		})
	})

	sched.Start(gctx)
	if hs != nil {
		hs.SetServing(true)
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("agent: shutting down")
		select {
		case <-sched.Stop().Done():
		case <-time.After(shutdownTimeout):
			logger.Warn("agent: jobs still running at shutdown deadline")
		}
		return nil
	})

	return g.Wait()
}

// buildSinks returns the exposition store plus every configured push sink,
// the stream hub when enabled, and a func closing the push sinks.
func buildSinks(ctx context.Context, cfg *config.Config, store *exposition.Store) ([]sink.Sink, *stream.Hub, func(), error) {
	sinks := []sink.Sink{store}
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("agent: sink close failed", "err", err)
			}
		}
	}

	if sc := cfg.MetricSinks.Statsd; sc != nil {
		s, err := statsd.New(*sc)
		if err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		sinks = append(sinks, s)
		closers = append(closers, s.Close)
	}
	if pc := cfg.MetricSinks.PubSub; pc != nil {
		s, err := pubsub.New(ctx, *pc)
		if err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		sinks = append(sinks, s)
		closers = append(closers, s.Close)
	}

	var hub *stream.Hub
	if sc := cfg.MetricSinks.Stream; sc != nil && sc.Enabled {
		hub = stream.New()
		sinks = append(sinks, hub)
	}
	return sinks, hub, closeAll, nil
}
