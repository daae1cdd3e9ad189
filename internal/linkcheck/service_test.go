package linkcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docmake/internal/config"
	"git.home.luguber.info/inful/docmake/internal/metrics"
	"git.home.luguber.info/inful/docmake/internal/retry"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o640))
	}
}

func newTestService(t *testing.T, htmlFiles, mdFiles map[string]string) *Service {
	t.Helper()
	tmp := t.TempDir()
	htmlDir := filepath.Join(tmp, "html")
	srcDir := filepath.Join(tmp, "docs")
	require.NoError(t, os.MkdirAll(htmlDir, 0o750))
	require.NoError(t, os.MkdirAll(srcDir, 0o750))
	writeTree(t, htmlDir, htmlFiles)
	writeTree(t, srcDir, mdFiles)
	return NewService(config.LinkCheckConfig{Timeout: "2s"}, htmlDir, srcDir)
}

func TestRunHealthyInternalLinks(t *testing.T) {
	svc := newTestService(t, map[string]string{
		"index.html": `<html><body>
			<a href="guide/intro.html">intro</a>
			<a href="guide/intro.html#setup">setup</a>
			<a href="#top">top</a>
			<h1 id="top">Top</h1>
		</body></html>`,
		"guide/intro.html": `<html><body>
			<h1 id="setup">Setup</h1>
			<a href="../index.html">back</a>
		</body></html>`,
	}, nil)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK(), "unexpected broken links: %+v", report.Broken)
	assert.Equal(t, 4, report.Checked)
}

func TestRunDetectsMissingFile(t *testing.T) {
	svc := newTestService(t, map[string]string{
		"index.html": `<a href="missing.html">gone</a>`,
	}, nil)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Broken, 1)
	assert.Equal(t, "missing.html", report.Broken[0].Destination)
	assert.Equal(t, "target file not found", report.Broken[0].Reason)
}

func TestRunDetectsMissingAnchor(t *testing.T) {
	svc := newTestService(t, map[string]string{
		"index.html": `<a href="other.html#nope">bad anchor</a>`,
		"other.html": `<h1 id="yep">Yep</h1>`,
	}, nil)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Broken, 1)
	assert.Contains(t, report.Broken[0].Reason, "missing anchor")
}

func TestRunDirectoryLinkNeedsIndex(t *testing.T) {
	svc := newTestService(t, map[string]string{
		"index.html":        `<a href="guide/">guide</a><a href="api/">api</a>`,
		"guide/index.html":  `<html></html>`,
		"api/reference.txt": "not an index",
	}, nil)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Broken, 1)
	assert.Equal(t, "api/", report.Broken[0].Destination)
}

func TestRunSkipsUncheckableSchemes(t *testing.T) {
	svc := newTestService(t, map[string]string{
		"index.html": `<a href="mailto:docs@example.com">mail</a><a href="#">self</a>`,
	}, nil)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Checked)
	assert.True(t, report.OK())
}

func TestRunExternalDisabledByDefault(t *testing.T) {
	svc := newTestService(t, map[string]string{
		"index.html": `<a href="https://definitely-not-resolvable.invalid/x">ext</a>`,
	}, nil)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestRunExternalChecks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/head-rejected":
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	svc := newTestService(t, map[string]string{
		"index.html": `<a href="` + srv.URL + `/ok">ok</a>` +
			`<a href="` + srv.URL + `/head-rejected">head</a>` +
			`<a href="` + srv.URL + `/missing">missing</a>`,
	}, nil)
	svc.cfg.External = true
	svc.WithRetryPolicy(retry.NewPolicy(retry.BackoffFixed, time.Millisecond, time.Millisecond, 0))

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Broken, 1)
	assert.Contains(t, report.Broken[0].Destination, "/missing")
	assert.Equal(t, "HTTP 404", report.Broken[0].Reason)
}

func TestRunMarkdownSources(t *testing.T) {
	svc := newTestService(t, nil, map[string]string{
		"index.md": `# Index

Good [link](guide.md) and bad [link](missing.md).

Good [fragment](#index) and bad [fragment](#nope).
`,
		"guide.md": "# Guide\n",
	})

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Broken, 2)

	reasons := map[string]string{}
	for _, b := range report.Broken {
		reasons[b.Destination] = b.Reason
	}
	assert.Equal(t, "target file not found", reasons["missing.md"])
	assert.Equal(t, "missing heading for fragment", reasons["#nope"])
}

// stubRecorder captures broken-links gauge updates.
type stubRecorder struct {
	metrics.NoopRecorder
	broken []int
}

func (r *stubRecorder) SetBrokenLinks(n int) { r.broken = append(r.broken, n) }

func TestRunUpdatesBrokenLinksGauge(t *testing.T) {
	svc := newTestService(t, map[string]string{
		"index.html": `<html><body>
			<a href="ok.html">ok</a>
			<a href="missing.html">gone</a>
		</body></html>`,
		"ok.html": `<html><body></body></html>`,
	}, nil)
	rec := &stubRecorder{}
	svc.WithRecorder(rec)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Broken, 1)
	assert.Equal(t, []int{1}, rec.broken)
}
