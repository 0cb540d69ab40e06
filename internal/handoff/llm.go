package handoff

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const systemPrompt = "You are a professional clinical summarization assistant preparing a nursing handoff. You do not diagnose or prescribe, and you do not invent facts. Respond with strict JSON only."

const promptTemplate = `Transform the clinical note below into a structured nursing handoff summary.

Respond with exactly one JSON object of this shape and no other fields:
{
  "handoffSummary": {
    "briefOverview": "2-3 sentence overview of the patient's current status and reason for visit",
    "actionItems": ["immediate next steps for the incoming nurse"],
    "pendingActions": [{"description": "action details", "timeframe": "when it is due"}]
  },
  "sections": [
    {
      "sectionType": one of %s,
      "summary": "narrative summary of this section",
      "keyPoints": ["critical data points"],
      "confidenceScore": number between 0 and 1,
      "sourceQuotes": ["verbatim excerpts from the note supporting this summary"]
    }
  ],
  "redFlags": [
    {
      "type": one of %s,
      "description": "clear description of the alert",
      "criticalityLevel": one of "critical", "high", "medium", "low",
      "rationale": "clinical reasoning for the alert"
    }
  ],
  "uncertainties": [
    {"description": "ambiguous or unclear information from the note", "potentialImpact": "how this might affect care"}
  ]
}

If a section is present in the note but not in the list above, place it in the closest listed section or ASSESSMENT.
List uncertainties wherever the note is contradictory, ambiguous, or lacks detail needed for a safe handoff.

Clinical note:
"""
%s
"""`

var (
	ErrNoSummarizer      = errors.New("generative summarizer not configured")
	ErrGenerativeOutput  = errors.New("generative output does not match the expected shape")
	promptSectionTypes   = quotedList(SectionChiefComplaint, SectionHistoryPresentIllness, SectionPastMedicalHistory, SectionMedications, SectionAllergies, SectionVitals, SectionPendingTests, SectionPendingLabs, SectionAssessment, SectionPlan, SectionHistory, SectionLabs, SectionImaging, SectionProcedure, SectionSocialHistory, SectionFamilyHistory)
	promptRedFlagTypes   = quotedList(FlagVitalInstability, FlagAbnormalLab, FlagSafetyRisk, FlagUrgentFinding)
	generativeTopLevel   = []string{"handoffSummary", "sections", "redFlags", "uncertainties"}
	DefaultSummaryModels = []string{string(anthropic.ModelClaudeSonnet4_20250514), "claude-3-5-haiku-latest"}
)

// Summarizer produces the generative section summaries for a normalized note.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (GenerativeResult, error)
}

type GenerativeHandoff struct {
	BriefOverview  string          `json:"briefOverview"`
	ActionItems    []string        `json:"actionItems"`
	PendingActions []PendingAction `json:"pendingActions"`
}

type GenerativeRedFlag struct {
	Type             RedFlagType `json:"type"`
	Description      string      `json:"description"`
	CriticalityLevel Criticality `json:"criticalityLevel"`
	Rationale        string      `json:"rationale"`
}

type GenerativeResult struct {
	HandoffSummary GenerativeHandoff   `json:"handoffSummary"`
	Sections       []SummarizedSection `json:"sections"`
	RedFlags       []GenerativeRedFlag `json:"redFlags"`
	Uncertainties  []Uncertainty       `json:"uncertainties"`
	Model          string              `json:"-"`
}

func (r GenerativeResult) Validate() error {
	if len(r.Sections) == 0 {
		return fmt.Errorf("%w: no sections", ErrGenerativeOutput)
	}
	for i, s := range r.Sections {
		if !s.SectionType.Valid() {
			return fmt.Errorf("%w: sections[%d].sectionType %q", ErrGenerativeOutput, i, s.SectionType)
		}
		if s.ConfidenceScore < 0 || s.ConfidenceScore > 1 {
			return fmt.Errorf("%w: sections[%d].confidenceScore %v out of range", ErrGenerativeOutput, i, s.ConfidenceScore)
		}
	}
	for i, f := range r.RedFlags {
		if !generativeFlagType(f.Type) {
			return fmt.Errorf("%w: redFlags[%d].type %q", ErrGenerativeOutput, i, f.Type)
		}
		if !f.CriticalityLevel.Valid() {
			return fmt.Errorf("%w: redFlags[%d].criticalityLevel %q", ErrGenerativeOutput, i, f.CriticalityLevel)
		}
	}
	for i, p := range r.HandoffSummary.PendingActions {
		if p.Urgency != "" && !p.Urgency.Valid() {
			return fmt.Errorf("%w: pendingActions[%d].urgency %q", ErrGenerativeOutput, i, p.Urgency)
		}
	}
	return nil
}

// ParseGenerativeResult extracts the JSON object from raw model output and
// decodes it strictly: all four top-level fields must be present and unknown
// fields are rejected.
func ParseGenerativeResult(raw string) (GenerativeResult, error) {
	var res GenerativeResult
	clean := extractJSONObject(stripCodeFences(raw))
	if clean == "" {
		return res, fmt.Errorf("%w: no JSON object in response", ErrGenerativeOutput)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(clean), &top); err != nil {
		return res, fmt.Errorf("%w: %v", ErrGenerativeOutput, err)
	}
	for _, k := range generativeTopLevel {
		if _, ok := top[k]; !ok {
			return res, fmt.Errorf("%w: missing %q", ErrGenerativeOutput, k)
		}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(clean)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&res); err != nil {
		return GenerativeResult{}, fmt.Errorf("%w: %v", ErrGenerativeOutput, err)
	}
	if err := res.Validate(); err != nil {
		return GenerativeResult{}, err
	}
	return res, nil
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

// AnthropicSummarizer asks each configured model in turn until one returns a
// valid result. An authentication failure or a cancelled context stops the
// walk; other client errors such as an unknown model move on to the next one.
type AnthropicSummarizer struct {
	messages AnthropicMessager
	models   []string
	logger   *zap.Logger
}

func NewAnthropicSummarizer(messages AnthropicMessager, models []string, logger *zap.Logger) *AnthropicSummarizer {
	if len(models) == 0 {
		models = DefaultSummaryModels
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnthropicSummarizer{messages: messages, models: append([]string(nil), models...), logger: logger}
}

func NewAnthropicSummarizerFromEnv(models []string, logger *zap.Logger) (*AnthropicSummarizer, error) {
	if envEnabled("HANDOFF_NO_LLM") {
		return nil, fmt.Errorf("%w: HANDOFF_NO_LLM is set", ErrNoSummarizer)
	}
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY not configured", ErrNoSummarizer)
	}
	return NewAnthropicSummarizer(newAnthropicClient(apiKey), models, logger), nil
}

func (a *AnthropicSummarizer) Models() []string { return append([]string(nil), a.models...) }

func (a *AnthropicSummarizer) Summarize(ctx context.Context, text string) (GenerativeResult, error) {
	prompt := fmt.Sprintf(promptTemplate, promptSectionTypes, promptRedFlagTypes, text)
	var lastErr error
	for _, model := range a.models {
		if err := ctx.Err(); err != nil {
			return GenerativeResult{}, err
		}
		raw, err := a.generate(ctx, model, prompt)
		if err != nil {
			class := classifyTransportError(err)
			a.logger.Warn("generative model failed",
				zap.String("model", model), zap.String("class", class.String()), zap.Error(err))
			if class == failureAuth {
				return GenerativeResult{}, fmt.Errorf("model %s: %w", model, err)
			}
			if class == failureTimeout && ctx.Err() != nil {
				return GenerativeResult{}, fmt.Errorf("model %s: %w", model, err)
			}
			lastErr = fmt.Errorf("model %s: %w", model, err)
			continue
		}
		res, err := ParseGenerativeResult(raw)
		if err != nil {
			a.logger.Warn("generative output rejected", zap.String("model", model), zap.Error(err))
			lastErr = fmt.Errorf("model %s: %w", model, err)
			continue
		}
		res.Model = model
		return res, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no models configured")
	}
	return GenerativeResult{}, fmt.Errorf("all models failed: %w", lastErr)
}

func (a *AnthropicSummarizer) generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   4096,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: empty response", ErrGenerativeOutput)
	}
	return sb.String(), nil
}

type llmFailureClass int

const (
	failureNone llmFailureClass = iota
	failureTimeout
	failureRateLimit
	failureServer
	failureAuth
	failureClient
)

func (c llmFailureClass) String() string {
	switch c {
	case failureTimeout:
		return "timeout"
	case failureRateLimit:
		return "ratelimit"
	case failureServer:
		return "server"
	case failureAuth:
		return "auth"
	case failureClient:
		return "client"
	}
	return "none"
}

func classifyTransportError(err error) llmFailureClass {
	if err == nil {
		return failureNone
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key") || strings.Contains(msg, "status code: 401") || strings.Contains(msg, "status code: 403"):
		return failureAuth
	case strings.Contains(msg, "429"):
		return failureRateLimit
	case strings.Contains(msg, "status code: 4"):
		return failureClient
	default:
		return failureServer
	}
}

func classifyStatus(code int) llmFailureClass {
	switch {
	case code == 401 || code == 403:
		return failureAuth
	case code == 429:
		return failureRateLimit
	case code >= 500:
		return failureServer
	case code >= 400:
		return failureClient
	}
	return failureServer
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

// extractJSONObject returns the span from the first '{' to the last '}'.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

func envEnabled(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func quotedList[T ~string](values ...T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%q", string(v))
	}
	return strings.Join(parts, ", ")
}
