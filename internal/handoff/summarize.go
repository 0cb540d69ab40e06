package handoff

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	summaryLineLimit   = 3
	localKeyPointLimit = 3
	minKeyPointRunes   = 10
	truncationMarker   = "..."
)

var bulletPrefix = regexp.MustCompile(`^[-*•]\s*`)

// LocalSummarizer derives section summaries without any model call.
type LocalSummarizer struct{}

func NewLocalSummarizer() *LocalSummarizer { return &LocalSummarizer{} }

func (LocalSummarizer) Summarize(m SectionMapping) SummarizedSection {
	lines := strings.Split(m.Content, "\n")

	summary := m.Content
	if len(lines) > summaryLineLimit {
		summary = strings.Join(lines[:summaryLineLimit], " ") + truncationMarker
	}

	keyPoints := []string{}
	var quotes []string
	for _, l := range lines {
		if len(keyPoints) == localKeyPointLimit {
			break
		}
		if utf8.RuneCountInString(strings.TrimSpace(l)) <= minKeyPointRunes {
			continue
		}
		keyPoints = append(keyPoints, strings.TrimSpace(bulletPrefix.ReplaceAllString(strings.TrimSpace(l), "")))
		quotes = append(quotes, l)
	}

	return SummarizedSection{
		SectionType:     m.SectionType,
		Summary:         summary,
		KeyPoints:       keyPoints,
		ConfidenceScore: m.Confidence,
		SourceQuotes:    quotes,
	}
}

func (s LocalSummarizer) SummarizeAll(mappings []SectionMapping) []SummarizedSection {
	out := make([]SummarizedSection, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, s.Summarize(m))
	}
	return out
}
