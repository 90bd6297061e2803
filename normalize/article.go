package normalize

import (
	"bytes"
	"fmt"

	"github.com/andybalholm/cascadia"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// Article extracts the main article body via readability before sentence
// splitting. Use it for pages where boilerplate (related links, comment
// sections) survives the DOM backend's tag stripping.
type Article struct {
	opts Options
}

// NewArticle creates the readability-backed normalizer.
func NewArticle(opts Options) *Article {
	return &Article{opts: opts}
}

// Normalize runs readability extraction and splits the result into
// sentences. A selector scopes the input subtree before extraction; a
// selector that matches nothing returns an empty sequence and no error.
func (n *Article) Normalize(raw []byte, selector string) ([]string, error) {
	input := raw
	if selector != "" {
		scoped, ok, err := scopeToSelector(raw, selector)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		input = scoped
	}

	article, err := readability.FromReader(bytes.NewReader(input), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	text := collapseWhitespace(article.TextContent)
	return SplitSentences(text, n.opts.MinSentenceChars), nil
}

// scopeToSelector re-renders the subtree(s) matching selector so that
// readability only sees the scoped region. Returns ok=false when nothing
// matched.
func scopeToSelector(raw []byte, selector string) ([]byte, bool, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrParse, err)
	}
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %q: %v", ErrSelector, selector, err)
	}
	matches := cascadia.QueryAll(doc, sel)
	if len(matches) == 0 {
		return nil, false, nil
	}

	var buf bytes.Buffer
	buf.WriteString("<html><body>")
	for _, m := range matches {
		if err := html.Render(&buf, m); err != nil {
			return nil, false, fmt.Errorf("%w: render: %v", ErrParse, err)
		}
	}
	buf.WriteString("</body></html>")
	return buf.Bytes(), true, nil
}
