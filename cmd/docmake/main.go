package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docmake/internal/builder"
	"git.home.luguber.info/inful/docmake/internal/config"
	"git.home.luguber.info/inful/docmake/internal/daemon"
	"git.home.luguber.info/inful/docmake/internal/history"
	"git.home.luguber.info/inful/docmake/internal/linkcheck"
	"git.home.luguber.info/inful/docmake/internal/logfields"
	"git.home.luguber.info/inful/docmake/internal/publish"
	"git.home.luguber.info/inful/docmake/internal/version"
	"git.home.luguber.info/inful/docmake/internal/workspace"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"docmake.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Target   string   `arg:"" optional:"" help:"Builder target to run (default: html); unknown names are forwarded to the builder"`
		Source   string   `help:"Override documentation source directory"`
		BuildDir string   `help:"Override build output directory"`
		Builder  string   `help:"Override builder binary"`
		Opts     []string `help:"Extra options passed to the builder"`
		Record   bool     `help:"Record this run in the build history"`
	} `cmd:"" help:"Run a documentation builder target"`

	Targets struct{} `cmd:"" help:"List well-known builder targets"`

	Publish struct {
		Message    string `short:"m" help:"Commit message for the published output"`
		Branch     string `help:"Hosting branch to push to"`
		Remote     string `help:"Remote to push to"`
		SkipBuild  bool   `help:"Publish the existing HTML output without rebuilding"`
		AllowEmpty bool   `help:"Commit even when the output is unchanged"`
		Force      bool   `help:"Force-push the hosting branch"`
	} `cmd:"" help:"Build HTML and push it to the hosting branch"`

	Linkcheck struct {
		External bool `help:"Also verify external http(s) links"`
	} `cmd:"" help:"Verify links in sources and built HTML"`

	Clean struct{} `cmd:"" help:"Remove build directory contents"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Watch struct{} `cmd:"" help:"Rebuild on source changes"`

	Serve struct{} `cmd:"" help:"Run continuously: watcher, scheduled rebuilds and metrics"`

	History struct {
		Target string `help:"Only show runs for one target"`
		Limit  int    `default:"20" help:"Maximum number of runs to show"`
	} `cmd:"" help:"Show recent build runs"`

	Version struct{} `cmd:"" help:"Print version information"`
}

// execBackend spawns the builder process; swapped for a stub in tests.
var execBackend builder.Exec = builder.CommandExec{}

func main() {
	ctx := kong.Parse(&CLI)

	// Set up logging
	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	var err error
	switch ctx.Command() {
	case "build", "build <target>":
		err = runBuild(CLI.Build.Target)
	case "targets":
		err = runTargets()
	case "publish":
		err = runPublish()
	case "linkcheck":
		err = runLinkcheck()
	case "clean":
		err = runClean()
	case "init":
		err = config.Init(CLI.Config, CLI.Init.Force)
	case "watch":
		err = runWatch()
	case "serve":
		err = runServe()
	case "history":
		err = runHistory()
	case "version":
		fmt.Printf("docmake %s (built %s, commit %s)\n", version.Version, version.BuildTime, version.GitCommit)
	}
	if err != nil {
		slog.Error("Command failed", logfields.Error(err))
		os.Exit(1)
	}
}

// loadConfig loads the config file, falling back to pure defaults when the
// default config file is absent (flags alone are enough for simple projects).
func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(CLI.Config); os.IsNotExist(err) && CLI.Config == "docmake.yaml" {
		slog.Debug("No configuration file found, using defaults")
		return config.Default(), nil
	}
	return config.Load(CLI.Config)
}

// applyBuildOverrides folds CLI flags into the builder configuration.
func applyBuildOverrides(cfg *config.Config) {
	if CLI.Build.Source != "" {
		cfg.Builder.SourceDir = CLI.Build.Source
	}
	if CLI.Build.BuildDir != "" {
		cfg.Builder.BuildDir = CLI.Build.BuildDir
	}
	if CLI.Build.Builder != "" {
		cfg.Builder.Binary = CLI.Build.Builder
	}
	if len(CLI.Build.Opts) > 0 {
		cfg.Builder.Opts = append(cfg.Builder.Opts, CLI.Build.Opts...)
	}
}

func runBuild(target string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyBuildOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ws := workspace.NewManager(cfg.Builder.BuildDir)
	if err := ws.Ensure(); err != nil {
		return err
	}

	runner := builder.NewRunner(cfg.Builder).WithExec(execBackend)

	if _, known := builder.Lookup(target); !known && target != "" {
		slog.Debug("Target not in the well-known list, forwarding to the builder",
			logfields.Target(target))
	}

	run := history.NewRun(target)
	if run.Target == "" {
		run.Target = builder.DefaultTarget
	}

	ctx := context.Background()
	var inv *builder.Invocation
	var buildErr error
	if target == builder.HelpTarget {
		inv, buildErr = runner.Help(ctx)
	} else {
		inv, buildErr = runner.Build(ctx, target)
	}

	if CLI.Build.Record {
		run.Duration = time.Since(run.StartedAt)
		if buildErr != nil {
			run.Status = history.StatusFailed
			run.Output = buildErr.Error()
		} else {
			run.Status = history.StatusSuccess
		}
		if err := recordRun(cfg, run); err != nil {
			slog.Warn("Failed to record build run", logfields.Error(err))
		}
	}

	if buildErr != nil {
		return buildErr
	}

	if inv.Target == builder.HelpTarget {
		// The builder's own help listing goes to the user, not the log.
		fmt.Print(inv.Stdout)
	}

	return nil
}

func recordRun(cfg *config.Config, run history.Run) error {
	store, err := history.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Append(context.Background(), run)
}

func runTargets() error {
	fmt.Println("Well-known targets (any other name is forwarded to the builder):")
	for _, t := range builder.KnownTargets() {
		fmt.Printf("  %-12s %s\n", t.Name, t.Description)
	}
	return nil
}

func runPublish() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !CLI.Publish.SkipBuild {
		ws := workspace.NewManager(cfg.Builder.BuildDir)
		if err := ws.Ensure(); err != nil {
			return err
		}
		runner := builder.NewRunner(cfg.Builder).WithExec(execBackend)
		if _, err := runner.Build(context.Background(), "html"); err != nil {
			return fmt.Errorf("html build failed, not publishing: %w", err)
		}
	}

	publisher := publish.NewPublisher(cfg.Publish, cfg.HTMLOutputDir())
	res, err := publisher.Publish(context.Background(), publish.Options{
		Message:    CLI.Publish.Message,
		Branch:     CLI.Publish.Branch,
		Remote:     CLI.Publish.Remote,
		AllowEmpty: CLI.Publish.AllowEmpty,
		Force:      CLI.Publish.Force,
	})
	if err != nil {
		return err
	}

	if res.Skipped {
		slog.Info("Documentation already published", logfields.Branch(res.Branch))
	}
	return nil
}

func runLinkcheck() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if CLI.Linkcheck.External {
		cfg.LinkCheck.External = true
	}

	svc := linkcheck.NewService(cfg.LinkCheck, cfg.HTMLOutputDir(), cfg.Builder.SourceDir)

	if cfg.LinkCheck.NATSURL != "" {
		nc, err := linkcheck.NewNATSClient(&cfg.LinkCheck)
		if err != nil {
			slog.Warn("Link check continuing without NATS", logfields.Error(err))
		} else {
			defer nc.Close()
			svc.WithNATS(nc)
		}
	}

	report, err := svc.Run(context.Background())
	if err != nil {
		return err
	}

	for _, b := range report.Broken {
		fmt.Printf("%s: %s (%s)\n", b.SourceFile, b.Destination, b.Reason)
	}
	if !report.OK() {
		return fmt.Errorf("found %d broken links", len(report.Broken))
	}

	fmt.Printf("All %d links OK\n", report.Checked)
	return nil
}

func runClean() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return workspace.NewManager(cfg.Builder.BuildDir).Clean()
}

func runWatch() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Watch mode is the daemon without schedule and metrics.
	cfg.Serve.Watch = true
	cfg.Serve.RebuildInterval = ""
	cfg.Serve.MetricsAddr = ""

	return runDaemon(cfg)
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return runDaemon(cfg)
}

func runDaemon(cfg *config.Config) error {
	// Create main context for the daemon
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.NewDaemon(cfg)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	// Start daemon in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Start(ctx)
	}()

	slog.Info("Daemon started, waiting for shutdown signal...")

	// Wait for either error or shutdown signal
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("daemon error: %w", err)
		}
	case <-ctx.Done():
		slog.Info("Shutdown signal received, stopping daemon...")
	}

	// Stop daemon gracefully
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	if err := d.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	slog.Info("Daemon stopped successfully")
	return nil
}

func runHistory() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	var runs []history.Run
	if CLI.History.Target != "" {
		runs, err = store.ByTarget(context.Background(), CLI.History.Target, CLI.History.Limit)
	} else {
		runs, err = store.Recent(context.Background(), CLI.History.Limit)
	}
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No recorded builds")
		return nil
	}

	for _, r := range runs {
		fmt.Printf("%s  %-10s %-8s %6dms  %s\n",
			r.StartedAt.Format(time.RFC3339), r.Target, r.Status, r.Duration.Milliseconds(), r.ID)
	}
	return nil
}
