package linkcheck

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractHTMLLinks(t *testing.T) {
	doc := `<html><head>
<link rel="stylesheet" href="_static/style.css">
<script src="_static/app.js"></script>
</head><body>
<a href="other.html">other</a>
<a href="https://example.com/page">external</a>
<img src="images/logo.png">
<a>no href</a>
</body></html>`

	links, err := ExtractHTMLLinks(strings.NewReader(doc))
	require.NoError(t, err)

	dests := make([]string, len(links))
	for i, l := range links {
		dests[i] = l.Destination
	}
	assert.ElementsMatch(t, []string{
		"_static/style.css",
		"_static/app.js",
		"other.html",
		"https://example.com/page",
		"images/logo.png",
	}, dests)
}

func TestExtractHTMLAnchors(t *testing.T) {
	doc := `<html><body>
<h1 id="intro">Intro</h1>
<h2 id="getting-started">Getting started</h2>
<a name="legacy"></a>
<p id="">empty ignored</p>
</body></html>`

	anchors, err := ExtractHTMLAnchors(strings.NewReader(doc))
	require.NoError(t, err)

	for _, want := range []string{"intro", "getting-started", "legacy"} {
		_, ok := anchors[want]
		assert.True(t, ok, "missing anchor %q", want)
	}
	assert.Len(t, anchors, 3)
}

func TestExtractMarkdownLinks(t *testing.T) {
	body := []byte(`# Doc

Inline [link](other.md) and image ![alt](images/pic.png).

Auto link <https://example.com>.

Reference [ref][r1].

[r1]: https://example.com/ref
`)

	links, err := ExtractMarkdownLinks(body)
	require.NoError(t, err)

	dests := make(map[string]bool)
	for _, l := range links {
		dests[l.Destination] = true
	}
	assert.True(t, dests["other.md"])
	assert.True(t, dests["images/pic.png"])
	assert.True(t, dests["https://example.com"])
	assert.True(t, dests["https://example.com/ref"])
}

func TestExtractMarkdownHeadings(t *testing.T) {
	body := []byte("# First\n\ntext\n\n## Second Heading\n")

	headings, err := ExtractMarkdownHeadings(body)
	require.NoError(t, err)
	assert.Equal(t, []string{"First", "Second Heading"}, headings)
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Getting Started":  "getting-started",
		"API Reference":    "api-reference",
		"Résumé":           "resume",
		"FAQ: What's new?": "faq-whats-new",
		"  spaced  out  ":  "spaced-out",
		"already-slugged":  "already-slugged",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}
