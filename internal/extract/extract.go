// Package extract turns uploaded clinical documents into plain note text.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file type; upload PDF, DOCX, or TXT")
	ErrLegacyDoc         = fmt.Errorf("%w: legacy .doc files are not supported, convert to .docx", ErrUnsupportedFormat)
)

// Extract reads the file at path and returns its text.
func Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text according to ext, which includes the leading
// dot. Unknown extensions are rejected rather than guessed.
func ExtractBytes(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".txt", ".md", ".text":
		return extractPlain(content), nil
	case ".doc":
		return "", ErrLegacyDoc
	default:
		return "", fmt.Errorf("%w (%q)", ErrUnsupportedFormat, ext)
	}
}

func extractPlain(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	return strings.ToValidUTF8(string(content), "�")
}
