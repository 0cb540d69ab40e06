package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joelkehle/clinical-handoff/internal/handoff"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HANDOFF_NO_LLM", "1")
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeNote(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSummarizeJSON(t *testing.T) {
	path := writeNote(t, "bed4.txt", "CC: Chest pain. Vitals: HR: 130, SpO2: 88")
	out, err := runCLI(t, "", "summarize", path)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	var s handoff.StructuredSummary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if s.SourceNoteID != "bed4.txt" || s.HandoffSummary.PriorityLevel != handoff.CriticalityCritical {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if s.ProcessingMetadata.SummarySource != handoff.SourceLocal {
		t.Fatalf("source=%s", s.ProcessingMetadata.SummarySource)
	}
}

func TestSummarizeMarkdownToFile(t *testing.T) {
	path := writeNote(t, "note.md", "CC: fall\nAllergies: penicillin - hives")
	dst := filepath.Join(t.TempDir(), "report.md")
	out, err := runCLI(t, "", "summarize", path, "--format", "markdown", "--out", dst, "--note-id", "ward-2")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if out != "" {
		t.Fatalf("nothing should go to stdout, got %q", out)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "- Source note: ward-2") || !strings.Contains(string(b), "severe_allergy") {
		t.Fatalf("unexpected report:\n%s", b)
	}
}

func TestSummarizeErrors(t *testing.T) {
	empty := writeNote(t, "empty.txt", "  ")
	if _, err := runCLI(t, "", "summarize", empty); err == nil {
		t.Fatal("expected validation error")
	}
	note := writeNote(t, "n.txt", "CC: cough")
	if _, err := runCLI(t, "", "summarize", note, "--format", "xml"); err == nil {
		t.Fatal("expected unknown format error")
	}
	if _, err := runCLI(t, "", "summarize", note, "--format", "pdf"); err == nil {
		t.Fatal("expected --out requirement for pdf")
	}
	legacy := writeNote(t, "n.doc", "binary")
	if _, err := runCLI(t, "", "summarize", legacy); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestSanitizeStdin(t *testing.T) {
	out, err := runCLI(t, "The patient should be given rest.", "sanitize", "-")
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if out != "[Prescriptive language removed] rest." {
		t.Fatalf("got %q", out)
	}
}

func TestRulesPrintsTable(t *testing.T) {
	out, err := runCLI(t, "", "rules")
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	for _, want := range []string{"sections:", "CHIEF_COMPLAINT", "red_flags:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rules output missing %q", want)
		}
	}
	if _, err := handoff.ParseRules([]byte(out)); err != nil {
		t.Fatalf("printed rules do not parse back: %v", err)
	}
}
