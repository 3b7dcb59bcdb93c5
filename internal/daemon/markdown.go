package daemon

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Run reports use pipe tables for the per-stage breakdown, so the converter
// needs the table extension enabled.
var reportMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.Table),
)

// RenderReportMarkdown converts a run report's markdown to HTML safe for
// embedding in daemon pages.
func RenderReportMarkdown(src []byte) (template.HTML, error) {
	var buf bytes.Buffer
	if err := reportMarkdown.Convert(src, &buf); err != nil {
		return "", err
	}
	clean, err := SanitizeHTML(buf.String())
	if err != nil {
		return "", err
	}
	// #nosec G203 - sanitized above
	return template.HTML(clean), nil
}
