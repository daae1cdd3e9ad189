package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubExec satisfies builder.Exec without spawning processes.
type stubExec struct {
	runErr   error
	calls    int
	lastArgs []string
}

func (s *stubExec) LookPath(string) error { return nil }

func (s *stubExec) Run(_ context.Context, _ string, args []string) (string, string, error) {
	s.calls++
	s.lastArgs = append([]string(nil), args...)
	return "builder output", "", s.runErr
}

// setupProject writes a config file into a fresh project directory and points
// the global CLI state at it, restoring everything afterwards.
func setupProject(t *testing.T, exec *stubExec) string {
	t.Helper()
	tmp := t.TempDir()

	cfgYAML := fmt.Sprintf(`builder:
  binary: sphinx-build
  source_dir: %s
  build_dir: %s
publish:
  branch: gh-pages
  remote: origin
  remote_url: %s
`,
		filepath.Join(tmp, "docs"),
		filepath.Join(tmp, "docs", "_build"),
		filepath.Join(tmp, "remote.git"))

	cfgPath := filepath.Join(tmp, "docmake.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o640))

	prevCLI := CLI
	prevExec := execBackend
	t.Cleanup(func() {
		CLI = prevCLI
		execBackend = prevExec
	})
	CLI.Config = cfgPath
	execBackend = exec

	return tmp
}

func TestPublishAbortsOnBuildFailure(t *testing.T) {
	exec := &stubExec{runErr: fmt.Errorf("exit status 2")}
	tmp := setupProject(t, exec)

	err := runPublish()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not publishing")
	assert.Equal(t, 1, exec.calls)

	// Nothing must have been committed or pushed: no output worktree repo,
	// no hosting branch on the remote.
	_, statErr := os.Stat(filepath.Join(tmp, "docs", "_build", "html", ".git"))
	assert.True(t, os.IsNotExist(statErr), "publish created an output repository despite the failed build")
	_, openErr := git.PlainOpen(filepath.Join(tmp, "remote.git"))
	assert.Error(t, openErr, "publish created the remote despite the failed build")
}

func TestPublishSkipBuildUsesExistingOutput(t *testing.T) {
	exec := &stubExec{}
	tmp := setupProject(t, exec)

	// Pre-built output and a bare hosting remote.
	htmlDir := filepath.Join(tmp, "docs", "_build", "html")
	require.NoError(t, os.MkdirAll(htmlDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(htmlDir, "index.html"), []byte("<html>v1</html>"), 0o640))
	_, err := git.PlainInit(filepath.Join(tmp, "remote.git"), true)
	require.NoError(t, err)

	CLI.Publish.SkipBuild = true
	require.NoError(t, runPublish())

	assert.Equal(t, 0, exec.calls, "--skip-build must not invoke the builder")

	bare, err := git.PlainOpen(filepath.Join(tmp, "remote.git"))
	require.NoError(t, err)
	ref, err := bare.Reference(plumbing.NewBranchReferenceName("gh-pages"), true)
	require.NoError(t, err)
	assert.False(t, ref.Hash().IsZero())
}

func TestBuildDefaultsToHTML(t *testing.T) {
	exec := &stubExec{}
	setupProject(t, exec)

	require.NoError(t, runBuild(""))
	require.Equal(t, 1, exec.calls)
	assert.Equal(t, "-M", exec.lastArgs[0])
	assert.Equal(t, "html", exec.lastArgs[1])
}

func TestBuildForwardsHelpTarget(t *testing.T) {
	exec := &stubExec{}
	setupProject(t, exec)

	require.NoError(t, runBuild("help"))
	require.Equal(t, 1, exec.calls)
	assert.Equal(t, "help", exec.lastArgs[1])
}
