package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docmake/internal/config"
	"git.home.luguber.info/inful/docmake/internal/metrics"
	"git.home.luguber.info/inful/docmake/internal/retry"
)

// setupOutput creates an HTML output dir with content and a bare repo acting
// as the hosting remote.
func setupOutput(t *testing.T) (htmlDir, barePath string) {
	t.Helper()
	tmp := t.TempDir()

	barePath = filepath.Join(tmp, "remote.git")
	_, err := git.PlainInit(barePath, true)
	require.NoError(t, err)

	htmlDir = filepath.Join(tmp, "html")
	require.NoError(t, os.MkdirAll(htmlDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(htmlDir, "index.html"), []byte("<html>v1</html>"), 0o640))

	return htmlDir, barePath
}

func testPublishConfig(barePath string) config.PublishConfig {
	return config.PublishConfig{
		Branch:    "gh-pages",
		Remote:    "origin",
		RemoteURL: barePath,
		Message:   "Update documentation",
	}
}

func fastRetry() retry.Policy {
	return retry.NewPolicy(retry.BackoffFixed, time.Millisecond, time.Millisecond, 1)
}

func TestPublishFreshOutput(t *testing.T) {
	htmlDir, barePath := setupOutput(t)
	p := NewPublisher(testPublishConfig(barePath), htmlDir).WithRetryPolicy(fastRetry())

	res, err := p.Publish(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, res.Pushed)
	assert.False(t, res.Skipped)
	assert.Equal(t, "gh-pages", res.Branch)

	// The hosting branch must exist on the remote.
	bare, err := git.PlainOpen(barePath)
	require.NoError(t, err)
	ref, err := bare.Reference(plumbing.NewBranchReferenceName("gh-pages"), true)
	require.NoError(t, err)
	assert.Equal(t, res.Commit, ref.Hash().String())

	// Hosting marker staged alongside the output.
	if _, err := os.Stat(filepath.Join(htmlDir, ".nojekyll")); err != nil {
		t.Errorf(".nojekyll missing: %v", err)
	}
}

func TestPublishUnchangedIsSkipped(t *testing.T) {
	htmlDir, barePath := setupOutput(t)
	p := NewPublisher(testPublishConfig(barePath), htmlDir).WithRetryPolicy(fastRetry())

	_, err := p.Publish(context.Background(), Options{})
	require.NoError(t, err)

	res, err := p.Publish(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.False(t, res.Pushed)
}

func TestPublishChangedOutput(t *testing.T) {
	htmlDir, barePath := setupOutput(t)
	p := NewPublisher(testPublishConfig(barePath), htmlDir).WithRetryPolicy(fastRetry())

	first, err := p.Publish(context.Background(), Options{})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(htmlDir, "index.html"), []byte("<html>v2</html>"), 0o640))

	second, err := p.Publish(context.Background(), Options{Message: "Rebuild"})
	require.NoError(t, err)
	assert.True(t, second.Pushed)
	assert.NotEqual(t, first.Commit, second.Commit)

	// Remote advanced to the new commit.
	bare, err := git.PlainOpen(barePath)
	require.NoError(t, err)
	ref, err := bare.Reference(plumbing.NewBranchReferenceName("gh-pages"), true)
	require.NoError(t, err)
	assert.Equal(t, second.Commit, ref.Hash().String())

	// Commit message override applied.
	commit, err := bare.CommitObject(ref.Hash())
	require.NoError(t, err)
	assert.Equal(t, "Rebuild", commit.Message)
}

func TestPublishCNAME(t *testing.T) {
	htmlDir, barePath := setupOutput(t)
	cfg := testPublishConfig(barePath)
	cfg.CNAME = "docs.example.com"
	p := NewPublisher(cfg, htmlDir).WithRetryPolicy(fastRetry())

	_, err := p.Publish(context.Background(), Options{})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(htmlDir, "CNAME"))
	require.NoError(t, err)
	assert.Equal(t, "docs.example.com\n", string(data))
}

func TestPublishMissingOutputDir(t *testing.T) {
	p := NewPublisher(testPublishConfig("unused"), filepath.Join(t.TempDir(), "missing"))

	_, err := p.Publish(context.Background(), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestPublishMissingRemoteWithoutURL(t *testing.T) {
	htmlDir, _ := setupOutput(t)
	cfg := config.PublishConfig{Branch: "gh-pages", Remote: "origin", Message: "m"}
	p := NewPublisher(cfg, htmlDir).WithRetryPolicy(fastRetry())

	_, err := p.Publish(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no remote_url configured")
}

func TestPublishCustomAuthor(t *testing.T) {
	htmlDir, barePath := setupOutput(t)
	cfg := testPublishConfig(barePath)
	cfg.AuthorName = "Docs Bot"
	cfg.AuthorEmail = "docs@example.com"
	p := NewPublisher(cfg, htmlDir).WithRetryPolicy(fastRetry())

	res, err := p.Publish(context.Background(), Options{})
	require.NoError(t, err)

	bare, err := git.PlainOpen(barePath)
	require.NoError(t, err)
	commit, err := bare.CommitObject(plumbing.NewHash(res.Commit))
	require.NoError(t, err)
	assert.Equal(t, "Docs Bot", commit.Author.Name)
	assert.Equal(t, "docs@example.com", commit.Author.Email)
}

func TestClassifyPushError(t *testing.T) {
	authErr := classifyPushError("origin", "gh-pages", errors.New("authentication required"))
	var ae *AuthError
	assert.ErrorAs(t, authErr, &ae)
	assert.True(t, isPermanentPushError(authErr))

	rejected := classifyPushError("origin", "gh-pages", errors.New("non-fast-forward update"))
	var re *PushRejectedError
	assert.ErrorAs(t, rejected, &re)
	assert.True(t, isPermanentPushError(rejected))

	transient := classifyPushError("origin", "gh-pages", errors.New("connection reset by peer"))
	assert.False(t, isPermanentPushError(transient))
}

// stubRecorder captures publish outcomes.
type stubRecorder struct {
	metrics.NoopRecorder
	publishes []bool
}

func (r *stubRecorder) IncPublish(success bool) { r.publishes = append(r.publishes, success) }

func TestPublishRecordsOutcome(t *testing.T) {
	htmlDir, barePath := setupOutput(t)
	rec := &stubRecorder{}
	p := NewPublisher(testPublishConfig(barePath), htmlDir).
		WithRetryPolicy(fastRetry()).
		WithRecorder(rec)

	_, err := p.Publish(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, rec.publishes)

	// Unchanged output is skipped, not counted as a publish.
	_, err = p.Publish(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, rec.publishes)
}

func TestPublishRecordsPushFailure(t *testing.T) {
	htmlDir, _ := setupOutput(t)
	cfg := testPublishConfig(filepath.Join(t.TempDir(), "missing.git"))
	rec := &stubRecorder{}
	p := NewPublisher(cfg, htmlDir).
		WithRetryPolicy(fastRetry()).
		WithRecorder(rec)

	_, err := p.Publish(context.Background(), Options{})
	require.Error(t, err)
	assert.Equal(t, []bool{false}, rec.publishes)
}
