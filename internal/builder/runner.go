package builder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/docmake/internal/config"
	"git.home.luguber.info/inful/docmake/internal/logfields"
)

// Exec abstracts how the external builder process is executed. This allows
// swapping out the real process execution (CommandExec) with a fake in tests
// without changing dispatch orchestration.
type Exec interface {
	LookPath(binary string) error
	Run(ctx context.Context, binary string, args []string) (stdout, stderr string, err error)
}

// CommandExec runs the builder binary via os/exec.
type CommandExec struct{}

func (CommandExec) LookPath(binary string) error {
	_, err := exec.LookPath(binary)
	return err
}

func (CommandExec) Run(ctx context.Context, binary string, args []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Invocation describes a completed builder run.
type Invocation struct {
	Target    string
	OutputDir string // builddir/<target>, the builder's output location hint
	Duration  time.Duration
	Stdout    string
	Stderr    string
}

// Runner dispatches targets to the external documentation builder using the
// "-M <target> <sourcedir> <builddir>" calling convention.
type Runner struct {
	cfg  config.BuilderConfig
	exec Exec
}

// NewRunner creates a runner for the configured builder.
func NewRunner(cfg config.BuilderConfig) *Runner {
	return &Runner{cfg: cfg, exec: CommandExec{}}
}

// WithExec allows tests or callers to inject a custom process executor.
func (r *Runner) WithExec(e Exec) *Runner {
	if e != nil {
		r.exec = e
	}
	return r
}

// Build forwards the named target to the builder. Unknown target names are
// forwarded unchanged; the builder reports whether the target exists.
func (r *Runner) Build(ctx context.Context, target string) (*Invocation, error) {
	if target == "" {
		target = DefaultTarget
	}

	if err := r.exec.LookPath(r.cfg.Binary); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrBuilderNotFound, r.cfg.Binary, err)
	}

	args := make([]string, 0, 4+len(r.cfg.Opts))
	args = append(args, "-M", target, r.cfg.SourceDir, r.cfg.BuildDir)
	args = append(args, r.cfg.Opts...)

	slog.Info("Running documentation builder",
		logfields.Builder(r.cfg.Binary),
		logfields.Target(target),
		logfields.Source(r.cfg.SourceDir),
		logfields.Path(r.cfg.BuildDir))

	start := time.Now()
	stdout, stderr, err := r.exec.Run(ctx, r.cfg.Binary, args)
	elapsed := time.Since(start)

	if stdout != "" {
		slog.Debug("builder stdout", "output", stdout)
	}
	if stderr != "" {
		slog.Warn("builder stderr", "error_output", stderr)
	}

	if err != nil {
		// The builder may write errors to either stream.
		output := stderr
		if output == "" {
			output = stdout
		} else if stdout != "" {
			output = stdout + "\n" + stderr
		}
		return nil, &BuildError{Target: target, Binary: r.cfg.Binary, Output: output, Err: err}
	}

	inv := &Invocation{
		Target:    target,
		OutputDir: filepath.Join(r.cfg.BuildDir, target),
		Duration:  elapsed,
		Stdout:    stdout,
		Stderr:    stderr,
	}

	slog.Info("Builder target completed",
		logfields.Target(target),
		logfields.DurationMS(float64(elapsed.Milliseconds())),
		logfields.Path(inv.OutputDir))

	return inv, nil
}

// Help forwards the builder's own help target, used for bare invocations.
func (r *Runner) Help(ctx context.Context) (*Invocation, error) {
	return r.Build(ctx, HelpTarget)
}
