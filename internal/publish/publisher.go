package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.home.luguber.info/inful/docmake/internal/config"
	"git.home.luguber.info/inful/docmake/internal/logfields"
	"git.home.luguber.info/inful/docmake/internal/metrics"
	"git.home.luguber.info/inful/docmake/internal/retry"
)

const (
	defaultAuthorName  = "docmake"
	defaultAuthorEmail = "docmake@localhost"
)

// Options control a single publish operation.
type Options struct {
	Message    string // overrides configured commit message
	Branch     string // overrides configured branch
	Remote     string // overrides configured remote name
	AllowEmpty bool   // commit even when the tree is unchanged
	Force      bool   // force-push the hosting branch
}

// Publisher commits built HTML output to a hosting branch and pushes it.
// The output directory is treated as its own git worktree, detached from the
// project repository, mirroring the classic "commit docs/_build/html to
// gh-pages" flow.
type Publisher struct {
	cfg      config.PublishConfig
	htmlDir  string
	policy   retry.Policy
	recorder metrics.Recorder
}

// NewPublisher creates a publisher for the given HTML output directory.
func NewPublisher(cfg config.PublishConfig, htmlDir string) *Publisher {
	return &Publisher{
		cfg:      cfg,
		htmlDir:  htmlDir,
		policy:   retry.DefaultPolicy(),
		recorder: metrics.NoopRecorder{},
	}
}

// WithRetryPolicy overrides the push retry policy.
func (p *Publisher) WithRetryPolicy(policy retry.Policy) *Publisher {
	p.policy = policy
	return p
}

// WithRecorder attaches a metrics recorder for publish outcomes.
func (p *Publisher) WithRecorder(r metrics.Recorder) *Publisher {
	if r != nil {
		p.recorder = r
	}
	return p
}

// Result describes a completed publish.
type Result struct {
	Commit  string
	Branch  string
	Remote  string
	Pushed  bool
	Skipped bool // true when nothing changed
}

// Publish stages all files in the HTML output directory, commits them on the
// hosting branch and pushes to the configured remote. When the tree is
// unchanged and AllowEmpty is not set, it returns a Result with Skipped set
// and no error.
func (p *Publisher) Publish(ctx context.Context, opts Options) (*Result, error) {
	if _, err := os.Stat(p.htmlDir); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoOutput, p.htmlDir)
	}

	branch := p.cfg.Branch
	if opts.Branch != "" {
		branch = opts.Branch
	}
	remoteName := p.cfg.Remote
	if opts.Remote != "" {
		remoteName = opts.Remote
	}
	message := p.cfg.Message
	if opts.Message != "" {
		message = opts.Message
	}

	repo, err := p.openOrInit(branch)
	if err != nil {
		return nil, err
	}

	if err := p.ensureRemote(repo, remoteName); err != nil {
		return nil, err
	}

	if err := p.writeHostingFiles(); err != nil {
		return nil, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	if err := p.ensureBranch(repo, wt, branch); err != nil {
		return nil, err
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, fmt.Errorf("failed to stage output files: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read worktree status: %w", err)
	}
	if status.IsClean() && !opts.AllowEmpty {
		slog.Info("Output unchanged, nothing to publish", logfields.Path(p.htmlDir), logfields.Branch(branch))
		return &Result{Branch: branch, Remote: remoteName, Skipped: true}, nil
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: opts.AllowEmpty,
		Author: &object.Signature{
			Name:  p.authorName(),
			Email: p.authorEmail(),
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit output: %w", err)
	}

	slog.Info("Committed documentation output",
		logfields.Branch(branch),
		slog.String("commit", hash.String()[:8]),
		slog.String("message", message))

	if err := p.push(ctx, repo, remoteName, branch, opts.Force); err != nil {
		p.recorder.IncPublish(false)
		return nil, err
	}
	p.recorder.IncPublish(true)

	slog.Info("Published documentation",
		logfields.Remote(remoteName),
		logfields.Branch(branch),
		slog.String("commit", hash.String()[:8]))

	return &Result{Commit: hash.String(), Branch: branch, Remote: remoteName, Pushed: true}, nil
}

// openOrInit opens the worktree repository in the HTML output directory,
// initializing a fresh one on the hosting branch if none exists yet.
func (p *Publisher) openOrInit(branch string) (*git.Repository, error) {
	repo, err := git.PlainOpen(p.htmlDir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("failed to open output repository: %w", err)
	}

	repo, err = git.PlainInit(p.htmlDir, false)
	if err != nil {
		return nil, fmt.Errorf("failed to init output repository: %w", err)
	}

	// Point the unborn HEAD at the hosting branch so the first commit lands there.
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("failed to set HEAD to %s: %w", branch, err)
	}

	slog.Debug("Initialized output repository", logfields.Path(p.htmlDir), logfields.Branch(branch))
	return repo, nil
}

// ensureBranch makes sure the worktree is on the hosting branch.
func (p *Publisher) ensureBranch(repo *git.Repository, wt *git.Worktree, branch string) error {
	ref := plumbing.NewBranchReferenceName(branch)

	head, err := repo.Head()
	if err != nil {
		// Unborn HEAD (fresh repository); openOrInit already pointed it at the branch.
		return nil
	}
	if head.Name() == ref {
		return nil
	}

	_, err = repo.Reference(ref, true)
	create := err != nil

	if err := wt.Checkout(&git.CheckoutOptions{Branch: ref, Create: create}); err != nil {
		return fmt.Errorf("failed to checkout branch %s: %w", branch, err)
	}
	return nil
}

// ensureRemote makes sure the named remote exists, creating it from the
// configured URL when missing.
func (p *Publisher) ensureRemote(repo *git.Repository, remoteName string) error {
	_, err := repo.Remote(remoteName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, git.ErrRemoteNotFound) {
		return fmt.Errorf("failed to look up remote %s: %w", remoteName, err)
	}

	if p.cfg.RemoteURL == "" {
		return fmt.Errorf("remote %q does not exist and no remote_url configured", remoteName)
	}

	_, err = repo.CreateRemote(&gitcfg.RemoteConfig{
		Name: remoteName,
		URLs: []string{p.cfg.RemoteURL},
	})
	if err != nil {
		return fmt.Errorf("failed to create remote %s: %w", remoteName, err)
	}

	slog.Debug("Created remote", logfields.Remote(remoteName), logfields.URL(p.cfg.RemoteURL))
	return nil
}

// writeHostingFiles drops hosting metadata into the output before staging:
// .nojekyll so GitHub Pages serves _static/ directories, and an optional CNAME.
func (p *Publisher) writeHostingFiles() error {
	nojekyll := filepath.Join(p.htmlDir, ".nojekyll")
	if _, err := os.Stat(nojekyll); os.IsNotExist(err) {
		if err := os.WriteFile(nojekyll, nil, 0o644); err != nil {
			return fmt.Errorf("failed to write .nojekyll: %w", err)
		}
	}

	if p.cfg.CNAME != "" {
		cname := filepath.Join(p.htmlDir, "CNAME")
		if err := os.WriteFile(cname, []byte(p.cfg.CNAME+"\n"), 0o644); err != nil {
			return fmt.Errorf("failed to write CNAME: %w", err)
		}
	}

	return nil
}

// push pushes the hosting branch, retrying transient failures per policy.
func (p *Publisher) push(ctx context.Context, repo *git.Repository, remoteName, branch string, force bool) error {
	auth, err := createAuth(p.cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to setup authentication: %w", err)
	}

	refSpec := gitcfg.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	if force {
		refSpec = gitcfg.RefSpec("+" + string(refSpec))
	}

	pushOptions := &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitcfg.RefSpec{refSpec},
		Auth:       auth,
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := p.policy.Delay(attempt)
			slog.Warn("Retrying push",
				logfields.Remote(remoteName),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				logfields.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := repo.PushContext(ctx, pushOptions)
		if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}

		lastErr = classifyPushError(remoteName, branch, err)
		if isPermanentPushError(lastErr) || attempt >= p.policy.MaxRetries {
			return lastErr
		}
	}
}

func (p *Publisher) authorName() string {
	if p.cfg.AuthorName != "" {
		return p.cfg.AuthorName
	}
	return defaultAuthorName
}

func (p *Publisher) authorEmail() string {
	if p.cfg.AuthorEmail != "" {
		return p.cfg.AuthorEmail
	}
	return defaultAuthorEmail
}
