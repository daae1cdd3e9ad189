package linkcheck

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/docmake/internal/config"
	"git.home.luguber.info/inful/docmake/internal/logfields"
	"git.home.luguber.info/inful/docmake/internal/metrics"
	"git.home.luguber.info/inful/docmake/internal/retry"
)

// Service verifies links in built HTML output and Markdown sources.
type Service struct {
	cfg       config.LinkCheckConfig
	htmlDir   string
	sourceDir string
	policy    retry.Policy
	client    *http.Client
	nats      *NATSClient
	recorder  metrics.Recorder

	// anchor cache per built HTML file (relative path -> fragment set)
	anchors map[string]map[string]struct{}
}

// NewService creates a link check service over the built HTML tree and the
// Markdown source tree.
func NewService(cfg config.LinkCheckConfig, htmlDir, sourceDir string) *Service {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		cfg:       cfg,
		htmlDir:   htmlDir,
		sourceDir: sourceDir,
		policy:    retry.DefaultPolicy(),
		client:    &http.Client{Timeout: timeout},
		recorder:  metrics.NoopRecorder{},
		anchors:   make(map[string]map[string]struct{}),
	}
}

// WithRecorder attaches a metrics recorder for the broken-links gauge.
func (s *Service) WithRecorder(r metrics.Recorder) *Service {
	if r != nil {
		s.recorder = r
	}
	return s
}

// WithNATS attaches a NATS client for result caching and broken-link events.
func (s *Service) WithNATS(c *NATSClient) *Service {
	s.nats = c
	return s
}

// WithRetryPolicy overrides the external check retry policy.
func (s *Service) WithRetryPolicy(p retry.Policy) *Service {
	s.policy = p
	return s
}

// WithHTTPClient overrides the HTTP client used for external checks.
func (s *Service) WithHTTPClient(c *http.Client) *Service {
	if c != nil {
		s.client = c
	}
	return s
}

// Run verifies all links and returns a report. Internal links are always
// checked; external http(s) links only when configured.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	if _, err := os.Stat(s.htmlDir); err == nil {
		if err := s.checkBuiltHTML(ctx, report); err != nil {
			return nil, err
		}
	} else {
		slog.Warn("Built HTML not found, skipping HTML link check", logfields.Path(s.htmlDir))
	}

	if _, err := os.Stat(s.sourceDir); err == nil {
		if err := s.checkMarkdownSources(ctx, report); err != nil {
			return nil, err
		}
	}

	if s.nats != nil {
		for i := range report.Broken {
			if err := s.nats.PublishBrokenLink(&report.Broken[i]); err != nil {
				slog.Warn("Failed to publish broken link event", logfields.Error(err))
			}
		}
	}

	s.recorder.SetBrokenLinks(len(report.Broken))

	slog.Info("Link check completed",
		slog.Int("checked", report.Checked),
		slog.Int("broken", len(report.Broken)))

	return report, nil
}

func (s *Service) checkBuiltHTML(ctx context.Context, report *Report) error {
	return filepath.WalkDir(s.htmlDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".html") {
			return nil
		}

		rel, err := filepath.Rel(s.htmlDir, p)
		if err != nil {
			return err
		}

		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open %s: %w", rel, err)
		}
		links, err := ExtractHTMLLinks(f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("extract links from %s: %w", rel, err)
		}

		for _, link := range links {
			s.checkOne(ctx, rel, link.Destination, report)
		}
		return nil
	})
}

func (s *Service) checkMarkdownSources(ctx context.Context, report *Report) error {
	return filepath.WalkDir(s.sourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Never descend into the build output.
			if strings.HasPrefix(d.Name(), "_build") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}

		rel, err := filepath.Rel(s.sourceDir, p)
		if err != nil {
			return err
		}

		body, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		links, err := ExtractMarkdownLinks(body)
		if err != nil {
			return fmt.Errorf("extract links from %s: %w", rel, err)
		}

		for _, link := range links {
			s.checkSourceLink(ctx, rel, body, link.Destination, report)
		}
		return nil
	})
}

// checkOne verifies a single link found in built HTML.
func (s *Service) checkOne(ctx context.Context, sourceRel, dest string, report *Report) {
	if skipDestination(dest) {
		return
	}
	report.Checked++

	u, err := url.Parse(dest)
	if err != nil {
		report.Broken = append(report.Broken, BrokenLink{SourceFile: sourceRel, Destination: dest, Reason: "unparseable URL"})
		return
	}

	if u.Scheme == "http" || u.Scheme == "https" {
		if s.cfg.External {
			if reason := s.checkExternal(ctx, dest); reason != "" {
				report.Broken = append(report.Broken, BrokenLink{SourceFile: sourceRel, Destination: dest, Reason: reason})
			}
		}
		return
	}

	targetRel, reason := s.resolveInternal(sourceRel, u)
	if reason != "" {
		report.Broken = append(report.Broken, BrokenLink{SourceFile: sourceRel, Destination: dest, Reason: reason})
		return
	}

	if u.Fragment != "" {
		if ok, err := s.hasAnchor(targetRel, u.Fragment); err == nil && !ok {
			report.Broken = append(report.Broken, BrokenLink{
				SourceFile:  sourceRel,
				Destination: dest,
				Reason:      fmt.Sprintf("missing anchor #%s in %s", u.Fragment, targetRel),
			})
		}
	}
}

// resolveInternal maps an internal URL to a file under the HTML tree,
// returning its relative path or a failure reason.
func (s *Service) resolveInternal(sourceRel string, u *url.URL) (string, string) {
	p := u.Path
	if p == "" {
		// Fragment-only link resolves against the containing document.
		return sourceRel, ""
	}

	var targetRel string
	if path.IsAbs(p) {
		targetRel = strings.TrimPrefix(p, "/")
	} else {
		targetRel = path.Join(path.Dir(filepath.ToSlash(sourceRel)), p)
	}
	if decoded, err := url.PathUnescape(targetRel); err == nil {
		targetRel = decoded
	}

	if strings.HasPrefix(targetRel, "..") {
		return "", "link escapes output directory"
	}

	full := filepath.Join(s.htmlDir, filepath.FromSlash(targetRel))
	info, err := os.Stat(full)
	if err != nil {
		return "", "target file not found"
	}
	if info.IsDir() {
		indexRel := path.Join(targetRel, "index.html")
		if _, err := os.Stat(filepath.Join(s.htmlDir, filepath.FromSlash(indexRel))); err != nil {
			return "", "directory link without index.html"
		}
		return indexRel, ""
	}

	return targetRel, ""
}

// hasAnchor reports whether the built HTML file defines the fragment.
func (s *Service) hasAnchor(targetRel, fragment string) (bool, error) {
	if !strings.HasSuffix(targetRel, ".html") {
		// Fragments on non-HTML assets are not checkable.
		return true, nil
	}

	anchors, ok := s.anchors[targetRel]
	if !ok {
		f, err := os.Open(filepath.Join(s.htmlDir, filepath.FromSlash(targetRel)))
		if err != nil {
			return false, err
		}
		defer f.Close()
		anchors, err = ExtractHTMLAnchors(f)
		if err != nil {
			return false, err
		}
		s.anchors[targetRel] = anchors
	}

	_, found := anchors[fragment]
	return found, nil
}

// checkSourceLink verifies a single link found in a Markdown source file.
func (s *Service) checkSourceLink(ctx context.Context, sourceRel string, body []byte, dest string, report *Report) {
	if skipDestination(dest) {
		return
	}
	report.Checked++

	u, err := url.Parse(dest)
	if err != nil {
		report.Broken = append(report.Broken, BrokenLink{SourceFile: sourceRel, Destination: dest, Reason: "unparseable URL"})
		return
	}

	if u.Scheme == "http" || u.Scheme == "https" {
		if s.cfg.External {
			if reason := s.checkExternal(ctx, dest); reason != "" {
				report.Broken = append(report.Broken, BrokenLink{SourceFile: sourceRel, Destination: dest, Reason: reason})
			}
		}
		return
	}
	if u.Scheme != "" {
		return // mailto: etc. already skipped; other schemes not checkable
	}

	if u.Path == "" {
		// Fragment-only: must match a heading slug in the same document.
		if u.Fragment == "" {
			return
		}
		headings, err := ExtractMarkdownHeadings(body)
		if err != nil {
			return
		}
		for _, h := range headings {
			if Slug(h) == u.Fragment {
				return
			}
		}
		report.Broken = append(report.Broken, BrokenLink{
			SourceFile:  sourceRel,
			Destination: dest,
			Reason:      "missing heading for fragment",
		})
		return
	}

	target := filepath.Join(s.sourceDir, filepath.Dir(filepath.FromSlash(sourceRel)), filepath.FromSlash(u.Path))
	if _, err := os.Stat(target); err != nil {
		report.Broken = append(report.Broken, BrokenLink{SourceFile: sourceRel, Destination: dest, Reason: "target file not found"})
	}
}

// checkExternal verifies an external URL over HTTP, consulting the NATS cache
// when available. Returns an empty string when the link is healthy.
func (s *Service) checkExternal(ctx context.Context, rawURL string) string {
	if s.nats != nil {
		if cached, err := s.nats.GetCachedResult(rawURL); err == nil && s.nats.IsCacheValid(cached) {
			if cached.IsValid {
				return ""
			}
			return cached.Error
		}
	}

	reason := s.probe(ctx, rawURL)

	if s.nats != nil {
		entry := &CacheEntry{URL: rawURL, IsValid: reason == "", Error: reason}
		if err := s.nats.SetCachedResult(entry); err != nil {
			slog.Debug("Failed to cache link result", logfields.URL(rawURL), logfields.Error(err))
		}
	}

	return reason
}

// probe performs the actual HTTP check with retry on transient failures.
// HEAD is tried first; servers that reject HEAD get a GET.
func (s *Service) probe(ctx context.Context, rawURL string) string {
	var lastReason string
	for attempt := 0; attempt <= s.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "canceled"
			case <-time.After(s.policy.Delay(attempt)):
			}
		}

		status, err := s.request(ctx, http.MethodHead, rawURL)
		if err == nil && status == http.StatusMethodNotAllowed {
			status, err = s.request(ctx, http.MethodGet, rawURL)
		}
		if err != nil {
			lastReason = err.Error()
			continue
		}
		if status >= 400 {
			lastReason = fmt.Sprintf("HTTP %d", status)
			if status >= 400 && status < 500 {
				return lastReason // permanent
			}
			continue
		}
		return ""
	}
	return lastReason
}

func (s *Service) request(ctx context.Context, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// skipDestination filters destinations that are never checkable.
func skipDestination(dest string) bool {
	if dest == "" || dest == "#" {
		return true
	}
	for _, prefix := range []string{"mailto:", "javascript:", "data:", "tel:"} {
		if strings.HasPrefix(dest, prefix) {
			return true
		}
	}
	return false
}
