package linkcheck

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// ExtractHTMLLinks parses an HTML document and returns its outgoing links:
// a/link href attributes and img/script src attributes.
func ExtractHTMLLinks(r io.Reader) ([]Link, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var links []Link
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a", "link":
				if v, ok := attr(n, "href"); ok && v != "" {
					links = append(links, Link{Kind: LinkKindHref, Destination: v})
				}
			case "img", "script":
				if v, ok := attr(n, "src"); ok && v != "" {
					links = append(links, Link{Kind: LinkKindSrc, Destination: v})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links, nil
}

// ExtractHTMLAnchors parses an HTML document and returns the set of fragment
// targets it defines: id attributes on any element plus legacy a name=...
// anchors.
func ExtractHTMLAnchors(r io.Reader) (map[string]struct{}, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	anchors := make(map[string]struct{})
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if v, ok := attr(n, "id"); ok && v != "" {
				anchors[v] = struct{}{}
			}
			if n.Data == "a" {
				if v, ok := attr(n, "name"); ok && v != "" {
					anchors[v] = struct{}{}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return anchors, nil
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}
