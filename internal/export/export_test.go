package export

import (
	"strings"
	"testing"
	"time"
)

func TestApplyPrintLayoutHooksMarksRedFlagsHeading(t *testing.T) {
	out := applyPrintLayoutHooks(`<h2>Red Flags</h2><p>x</p>`)
	if !strings.Contains(out, `<h2 data-section="red-flags">Red Flags</h2>`) {
		t.Fatalf("expected red flag heading hook, got: %s", out)
	}
}

func TestApplyPrintLayoutHooksBreaksBeforeFindings(t *testing.T) {
	out := applyPrintLayoutHooks(`<h2>Structured Findings</h2>`)
	if !strings.Contains(out, `<h2 data-page-break-before="true">Structured Findings</h2>`) {
		t.Fatalf("expected page break hook, got: %s", out)
	}
}

func TestApplyPrintLayoutHooksStylesCriticality(t *testing.T) {
	out := applyPrintLayoutHooks(`<tr><td>CRITICAL</td><td>urgent_language</td></tr><tr><td>HIGH</td></tr><tr><td>MEDIUM</td></tr>`)
	if !strings.Contains(out, `<td class="criticality-critical">CRITICAL</td>`) || !strings.Contains(out, `<td class="criticality-high">HIGH</td>`) {
		t.Fatalf("expected criticality classes, got: %s", out)
	}
	if !strings.Contains(out, `<td>MEDIUM</td>`) {
		t.Fatalf("medium cells should be untouched, got: %s", out)
	}
}

func TestApplyPrintLayoutHooksNoop(t *testing.T) {
	in := "<h2>Processing</h2><p>x</p>"
	if out := applyPrintLayoutHooks(in); out != in {
		t.Fatalf("expected no change, got: %s", out)
	}
}

func TestRenderHTML(t *testing.T) {
	md := "# Clinical Handoff Summary\n\n## Red Flags\n\n| Criticality | Type |\n|---|---|\n| CRITICAL | urgent_language |\n"
	doc, err := RenderHTML(md)
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	for _, want := range []string{"<!doctype html>", "<h1>Clinical Handoff Summary</h1>", `data-section="red-flags"`, "<table>", `class="criticality-critical"`, "border-collapse"} {
		if !strings.Contains(doc, want) {
			t.Fatalf("html missing %q:\n%s", want, doc)
		}
	}
}

func TestNewChromiumPDFRendererDefaults(t *testing.T) {
	r := NewChromiumPDFRenderer("/opt/chrome", 0)
	if r.chromePath != "/opt/chrome" || r.timeout != DefaultPDFTimeout {
		t.Fatalf("unexpected renderer: %+v", r)
	}
	r = NewChromiumPDFRenderer("", 5*time.Second)
	if r.timeout != 5*time.Second {
		t.Fatalf("timeout=%s", r.timeout)
	}
}
