// Package export renders handoff report markdown to HTML and PDF.
package export

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed report.css
var reportCSS string

var (
	redFlagsHeading   = regexp.MustCompile(`(?i)<h2([^>]*)>\s*Red Flags\s*</h2>`)
	findingsHeading   = regexp.MustCompile(`(?i)<h2([^>]*)>\s*Structured Findings\s*</h2>`)
	criticalityCell   = regexp.MustCompile(`<td>(CRITICAL|HIGH)</td>`)
	markdownConverter = goldmark.New(goldmark.WithExtensions(extension.GFM))
)

// RenderHTML converts report markdown into a standalone HTML document.
func RenderHTML(markdown string) (string, error) {
	var content strings.Builder
	if err := markdownConverter.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>Clinical Handoff Summary</title>" +
		"<style>" + reportCSS + "</style></head><body>" +
		"<main class='report'>" + applyPrintLayoutHooks(content.String()) + "</main>" +
		"</body></html>", nil
}

func applyPrintLayoutHooks(contentHTML string) string {
	out := redFlagsHeading.ReplaceAllString(contentHTML, `<h2$1 data-section="red-flags">Red Flags</h2>`)
	out = findingsHeading.ReplaceAllString(out, `<h2$1 data-page-break-before="true">Structured Findings</h2>`)
	return criticalityCell.ReplaceAllStringFunc(out, func(cell string) string {
		level := strings.ToLower(criticalityCell.FindStringSubmatch(cell)[1])
		return `<td class="criticality-` + level + `">` + strings.ToUpper(level) + `</td>`
	})
}
