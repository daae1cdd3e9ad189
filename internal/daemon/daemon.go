package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docmake/internal/builder"
	"git.home.luguber.info/inful/docmake/internal/config"
	"git.home.luguber.info/inful/docmake/internal/history"
	"git.home.luguber.info/inful/docmake/internal/linkcheck"
	"git.home.luguber.info/inful/docmake/internal/logfields"
	"git.home.luguber.info/inful/docmake/internal/metrics"
	"git.home.luguber.info/inful/docmake/internal/workspace"
)

// Daemon keeps the documentation continuously built: it rebuilds on source
// changes, on a fixed schedule, and exposes Prometheus metrics. Every run is
// recorded in the history store.
type Daemon struct {
	cfg       *config.Config
	runner    *builder.Runner
	ws        *workspace.Manager
	store     history.Store
	recorder  metrics.Recorder
	scheduler *Scheduler
	watcher   *Watcher
	links     *linkcheck.Service
	metricsrv *http.Server

	// rebuild trigger with capacity 1: bursts collapse into one pending build
	trigger chan struct{}
	done    chan struct{}
}

// NewDaemon creates a daemon for the given configuration.
func NewDaemon(cfg *config.Config) (*Daemon, error) {
	store, err := history.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	registry := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	d := &Daemon{
		cfg:      cfg,
		runner:   builder.NewRunner(cfg.Builder),
		ws:       workspace.NewManager(cfg.Builder.BuildDir),
		store:    store,
		recorder: recorder,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	if cfg.Serve.Linkcheck {
		d.links = linkcheck.NewService(cfg.LinkCheck, cfg.HTMLOutputDir(), cfg.Builder.SourceDir).
			WithRecorder(recorder)
	}

	if cfg.Serve.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.HTTPHandler(registry))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		d.metricsrv = &http.Server{Addr: cfg.Serve.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	return d, nil
}

// WithRunner injects a custom builder runner (for testing).
func (d *Daemon) WithRunner(r *builder.Runner) *Daemon {
	d.runner = r
	return d
}

// Start runs the daemon until the context is canceled.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.ws.Ensure(); err != nil {
		return err
	}

	if d.metricsrv != nil {
		go func() {
			slog.Info("Metrics endpoint listening", slog.String("addr", d.metricsrv.Addr))
			if err := d.metricsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", logfields.Error(err))
			}
		}()
	}

	if d.cfg.Serve.Watch {
		watcher, err := NewWatcher(d.cfg.Builder.SourceDir, d.cfg.Builder.BuildDir, d.Trigger)
		if err != nil {
			return err
		}
		d.watcher = watcher
		if err := d.watcher.Start(ctx); err != nil {
			return err
		}
	}

	if d.cfg.Serve.RebuildInterval != "" {
		interval, err := time.ParseDuration(d.cfg.Serve.RebuildInterval)
		if err != nil {
			return fmt.Errorf("invalid rebuild_interval: %w", err)
		}
		scheduler, err := NewScheduler()
		if err != nil {
			return err
		}
		d.scheduler = scheduler
		if _, err := d.scheduler.SchedulePeriodicRebuild(interval, d.Trigger); err != nil {
			return err
		}
		d.scheduler.Start(ctx)
	}

	// Build once at startup, then serve triggers.
	d.Trigger()

	go d.buildLoop(ctx)

	slog.Info("Daemon started",
		slog.Bool("watch", d.cfg.Serve.Watch),
		slog.String("rebuild_interval", d.cfg.Serve.RebuildInterval))

	<-ctx.Done()
	return nil
}

// Stop shuts the daemon down gracefully.
func (d *Daemon) Stop(ctx context.Context) error {
	var errs []error

	if d.watcher != nil {
		if err := d.watcher.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if d.scheduler != nil {
		if err := d.scheduler.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if d.metricsrv != nil {
		if err := d.metricsrv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.store.Close(); err != nil {
		errs = append(errs, err)
	}

	slog.Info("Daemon stopped")
	return errors.Join(errs...)
}

// Trigger requests a rebuild. Multiple triggers while a build is running
// collapse into a single pending build.
func (d *Daemon) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default: // a rebuild is already pending
	}
}

// buildLoop serializes builds: one at a time, always the html target.
func (d *Daemon) buildLoop(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.trigger:
			d.runBuild(ctx)
		}
	}
}

// runBuild executes one build, recording metrics and history.
func (d *Daemon) runBuild(ctx context.Context) {
	run := history.NewRun(builder.DefaultTarget)
	slog.Info("Rebuilding documentation", logfields.RunID(run.ID))

	inv, err := d.runner.Build(ctx, builder.DefaultTarget)

	run.Duration = time.Since(run.StartedAt)
	switch {
	case err == nil:
		run.Status = history.StatusSuccess
		d.recorder.ObserveBuildDuration(run.Target, inv.Duration)
		d.recorder.IncBuildOutcome(run.Target, metrics.OutcomeSuccess)
		d.checkLinks(ctx)
	case errors.Is(err, context.Canceled):
		run.Status = history.StatusCanceled
		d.recorder.IncBuildOutcome(run.Target, metrics.OutcomeCanceled)
	default:
		run.Status = history.StatusFailed
		run.Output = truncate(err.Error(), 4096)
		d.recorder.IncBuildOutcome(run.Target, metrics.OutcomeFailed)
		slog.Error("Rebuild failed", logfields.RunID(run.ID), logfields.Error(err))
	}

	if appendErr := d.store.Append(ctx, run); appendErr != nil {
		slog.Warn("Failed to record build run", logfields.RunID(run.ID), logfields.Error(appendErr))
	}
}

// checkLinks verifies the freshly built tree when post-build link checking is
// enabled. The broken-links gauge is updated by the service itself.
func (d *Daemon) checkLinks(ctx context.Context) {
	if d.links == nil {
		return
	}
	report, err := d.links.Run(ctx)
	if err != nil {
		slog.Warn("Link check failed", logfields.Error(err))
		return
	}
	if !report.OK() {
		slog.Warn("Broken links in built documentation", slog.Int("broken", len(report.Broken)))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
