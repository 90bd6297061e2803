package notify

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
)

// defaultPreviewChars caps the rendered preview included in change reports.
const defaultPreviewChars = 1000

// PreviewRenderer turns the current page HTML into a short, sanitized
// markdown preview for change reports.
type PreviewRenderer struct {
	policy   *bluemonday.Policy
	conv     *converter.Converter
	maxChars int
}

// NewPreviewRenderer creates a renderer. maxChars <= 0 uses the default cap.
func NewPreviewRenderer(maxChars int) *PreviewRenderer {
	if maxChars <= 0 {
		maxChars = defaultPreviewChars
	}
	return &PreviewRenderer{
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
		maxChars: maxChars,
	}
}

// Render sanitizes html, converts it to markdown, and truncates. Conversion
// failures degrade to an empty preview rather than failing the report.
func (p *PreviewRenderer) Render(html, sourceURL string) string {
	clean := p.policy.Sanitize(html)
	md, err := p.conv.ConvertString(clean, converter.WithDomain(sourceURL))
	if err != nil {
		return ""
	}
	md = strings.TrimSpace(md)
	runes := []rune(md)
	if len(runes) > p.maxChars {
		return string(runes[:p.maxChars]) + "..."
	}
	return md
}
