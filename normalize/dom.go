package normalize

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// strippedAtoms are elements whose entire subtree is invisible or noise:
// scripts, styles, media, captions, and page chrome. Their text never counts
// as page content.
var strippedAtoms = map[atom.Atom]bool{
	atom.Script:     true,
	atom.Style:      true,
	atom.Noscript:   true,
	atom.Svg:        true,
	atom.Meta:       true,
	atom.Link:       true,
	atom.Iframe:     true,
	atom.Img:        true,
	atom.Figure:     true,
	atom.Figcaption: true,
	atom.Nav:        true,
	atom.Header:     true,
	atom.Footer:     true,
	atom.Aside:      true,
}

// dynamicMarkers flag elements whose class or id names machine-generated
// chrome: clocks, cache busters, session and CSRF tokens, "last updated"
// stamps. Their text churns on every fetch without carrying content, so the
// subtree is skipped like hidden elements. Substring match, case-insensitive.
var dynamicMarkers = []string{
	"timestamp", "time", "date", "session", "csrf", "token", "nonce",
	"updated", "modified",
}

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	regexp.MustCompile(`(?i)font-size\s*:\s*0[^1-9]`),
	regexp.MustCompile(`(?i)opacity\s*:\s*0[^.]`),
}

// DOM extracts the visible text of the whole page (or a selector subtree)
// by walking the parsed HTML tree in document order.
type DOM struct {
	opts Options
}

// NewDOM creates the DOM-walking normalizer.
func NewDOM(opts Options) *DOM {
	return &DOM{opts: opts}
}

// Normalize parses raw HTML and returns its visible text as ordered
// sentences. A selector that matches nothing returns an empty sequence and
// no error: "no content" is a legitimate page state, not a failure.
func (n *DOM) Normalize(raw []byte, selector string) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	roots := []*html.Node{doc}
	if selector != "" {
		sel, err := cascadia.Parse(selector)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrSelector, selector, err)
		}
		roots = cascadia.QueryAll(doc, sel)
		if len(roots) == 0 {
			return nil, nil
		}
	}

	var sb strings.Builder
	for _, root := range roots {
		n.collectVisibleText(root, &sb)
	}
	text := collapseWhitespace(sb.String())
	return SplitSentences(text, n.opts.MinSentenceChars), nil
}

// collectVisibleText appends all visible text under node, in document order.
func (n *DOM) collectVisibleText(node *html.Node, sb *strings.Builder) {
	switch node.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		text := strings.TrimSpace(node.Data)
		if text != "" {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(text)
		}
		return
	case html.ElementNode:
		if strippedAtoms[node.DataAtom] {
			return
		}
		if hasHiddenStyle(node) {
			return
		}
		if !n.opts.KeepDynamic && hasDynamicMarker(node) {
			return
		}
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		n.collectVisibleText(c, sb)
	}
}

// hasDynamicMarker reports whether the element's class or id contains one of
// the dynamic-chrome markers.
func hasDynamicMarker(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key != "class" && a.Key != "id" {
			continue
		}
		val := strings.ToLower(a.Val)
		for _, m := range dynamicMarkers {
			if strings.Contains(val, m) {
				return true
			}
		}
	}
	return false
}

func hasHiddenStyle(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "style" {
			for _, pat := range hiddenStylePatterns {
				if pat.MatchString(a.Val) {
					return true
				}
			}
		}
	}
	return false
}
