package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractBytesPlain(t *testing.T) {
	got, err := ExtractBytes([]byte("CC: chest pain\nHPI: onset 2h"), ".TXT")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "CC: chest pain\nHPI: onset 2h" {
		t.Fatalf("got %q", got)
	}
	got, _ = ExtractBytes([]byte("hello\x80world"), ".md")
	if got != "hello�world" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractBytesDOCXKeepsParagraphs(t *testing.T) {
	doc := `<?xml version="1.0"?><w:document><w:body>` +
		`<w:p w:rsidR="00A1"><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Chief Complaint:</w:t></w:r><w:r><w:t xml:space="preserve"> chest pain</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Allergies: sulfa &amp; latex</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	got, err := ExtractBytes(buildDOCX(t, doc), ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Chief Complaint: chest pain\nAllergies: sulfa & latex" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractBytesDOCXErrors(t *testing.T) {
	if _, err := ExtractBytes([]byte("not a zip"), ".docx"); err == nil {
		t.Fatal("expected error for non-zip docx")
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_ = zw.Close()
	if _, err := ExtractBytes(buf.Bytes(), ".docx"); err == nil {
		t.Fatal("expected error for docx without document.xml")
	}
}

func TestExtractBytesPDFRejectsGarbage(t *testing.T) {
	if _, err := ExtractBytes([]byte("%PDF-garbage"), ".pdf"); err == nil {
		t.Fatal("expected error for malformed pdf")
	}
}

func TestExtractBytesRejectsUnsupported(t *testing.T) {
	_, err := ExtractBytes([]byte("x"), ".doc")
	if !errors.Is(err, ErrUnsupportedFormat) || !errors.Is(err, ErrLegacyDoc) {
		t.Fatalf("expected legacy doc rejection, got %v", err)
	}
	for _, ext := range []string{".rtf", ".xlsx", ""} {
		if _, err := ExtractBytes([]byte("x"), ext); !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("%q: expected ErrUnsupportedFormat, got %v", ext, err)
		}
	}
}

func TestExtractFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")
	if err := os.WriteFile(path, []byte("Vitals: HR 88"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := Extract(path)
	if err != nil || got != "Vitals: HR 88" {
		t.Fatalf("got %q, %v", got, err)
	}
	if _, err := Extract(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected read error")
	}
}
