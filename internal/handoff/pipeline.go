package handoff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	StageInputProcessing         = "input_processing"
	StageSectionClassification   = "section_classification"
	StageEntityExtraction        = "entity_extraction"
	StageGenerativeSummarization = "generative_summarization"
	StageLocalSummarization      = "local_summarization"
	StageRedFlagDetection        = "red_flag_detection"
	StageOutputFormatting        = "output_formatting"
	StageSafetyValidation        = "safety_validation"
)

const DefaultGenerativeTimeout = 60 * time.Second

type FallbackPolicy string

const (
	FallbackLocal FallbackPolicy = "local"
	FallbackAbort FallbackPolicy = "abort"
)

func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch FallbackPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FallbackLocal:
		return FallbackLocal, nil
	case FallbackAbort:
		return FallbackAbort, nil
	}
	return "", fmt.Errorf("unknown fallback policy %q", s)
}

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ValidationError is returned before any stage runs when the note is rejected.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return "input validation failed: " + strings.Join(e.Errors, "; ")
}

func StageNameFromError(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return StageInputProcessing
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "pipeline"
}

type StageProgressFn func(stage, message string)

// Metrics receives pipeline outcomes. telemetry.Collector satisfies it.
type Metrics interface {
	StageCompleted(stage string, elapsed time.Duration)
	RunSucceeded(summary StructuredSummary)
	RunFailed(stage string)
	GenerativeFallback()
}

type noopMetrics struct{}

func (noopMetrics) StageCompleted(string, time.Duration) {}
func (noopMetrics) RunSucceeded(StructuredSummary)       {}
func (noopMetrics) RunFailed(string)                     {}
func (noopMetrics) GenerativeFallback()                  {}

type Option func(*Pipeline)

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithSummarizer enables the generative path. A nil summarizer leaves the
// pipeline local-only.
func WithSummarizer(s Summarizer) Option {
	return func(p *Pipeline) { p.summarizer = s }
}

func WithFallbackPolicy(policy FallbackPolicy) Option {
	return func(p *Pipeline) { p.fallback = policy }
}

func WithGenerativeTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.generativeTimeout = d
		}
	}
}

// WithAbbreviationExpansion expands clinical abbreviations in locally
// produced summaries and key points.
func WithAbbreviationExpansion(enabled bool) Option {
	return func(p *Pipeline) { p.expandAbbreviations = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

type Pipeline struct {
	rules      *Rules
	input      *InputProcessor
	classifier *SectionClassifier
	extractor  *EntityExtractor
	local      *LocalSummarizer
	detector   *RedFlagDetector
	formatter  *OutputFormatter
	safety     *SafetyValidator

	summarizer          Summarizer
	fallback            FallbackPolicy
	generativeTimeout   time.Duration
	expandAbbreviations bool

	logger  *zap.Logger
	metrics Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

func NewPipeline(rules *Rules, opts ...Option) *Pipeline {
	if rules == nil {
		rules = DefaultRules()
	}
	p := &Pipeline{
		rules:             rules,
		input:             NewInputProcessor(rules),
		classifier:        NewSectionClassifier(rules),
		extractor:         NewEntityExtractor(rules),
		local:             NewLocalSummarizer(),
		detector:          NewRedFlagDetector(rules),
		formatter:         NewOutputFormatter(rules),
		safety:            NewSafetyValidator(rules),
		fallback:          FallbackLocal,
		generativeTimeout: DefaultGenerativeTimeout,
		logger:            zap.NewNop(),
		metrics:           noopMetrics{},
		tracer:            otel.Tracer("github.com/joelkehle/clinical-handoff/internal/handoff"),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Rules() *Rules { return p.rules }

func (p *Pipeline) Sanitize(text string) string { return p.safety.SanitizeContent(text) }

func (p *Pipeline) Process(ctx context.Context, req NoteRequest) (StructuredSummary, error) {
	return p.process(ctx, req, nil)
}

func (p *Pipeline) ProcessWithProgress(ctx context.Context, req NoteRequest, progress StageProgressFn) (StructuredSummary, error) {
	return p.process(ctx, req, progress)
}

// process runs every stage in order. On error the zero StructuredSummary is
// returned; partial results are discarded.
func (p *Pipeline) process(ctx context.Context, req NoteRequest, progress StageProgressFn) (StructuredSummary, error) {
	started := p.now()
	noteID := strings.TrimSpace(req.NoteID)
	if noteID == "" {
		noteID = uuid.NewString()
	}
	ctx, span := p.tracer.Start(ctx, "handoff.process", trace.WithAttributes(attribute.String("note.id", noteID)))
	defer span.End()
	log := p.logger.With(zap.String("note_id", noteID))

	summary, err := p.run(ctx, noteID, req.Text, started, progress)
	if err != nil {
		stage := StageNameFromError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		p.metrics.RunFailed(stage)
		log.Warn("handoff run failed", zap.String("stage", stage), zap.Error(err))
		return StructuredSummary{}, err
	}
	p.metrics.RunSucceeded(summary)
	log.Info("handoff run complete",
		zap.String("summary_id", summary.ID),
		zap.String("source", string(summary.ProcessingMetadata.SummarySource)),
		zap.Int("sections", len(summary.Sections)),
		zap.Int("red_flags", len(summary.RedFlags)),
		zap.Int("violations", len(summary.SafetyValidation.Violations)),
		zap.Int64("elapsed_ms", summary.ProcessingMetadata.ProcessingTimeMs))
	return summary, nil
}

func (p *Pipeline) run(ctx context.Context, noteID, raw string, started time.Time, progress StageProgressFn) (StructuredSummary, error) {
	vr := p.input.Validate(raw)
	if !vr.IsValid {
		return StructuredSummary{}, &ValidationError{Errors: vr.Errors, Warnings: vr.Warnings}
	}
	warnings := append([]string{}, vr.Warnings...)
	var used []string

	var (
		text string
		meta NoteMetadata
	)
	emit(progress, StageInputProcessing, "Normalizing note text...")
	if err := p.stage(ctx, StageInputProcessing, func(context.Context) error {
		text = p.input.Preprocess(raw)
		meta = p.input.ExtractMetadata(text)
		return nil
	}); err != nil {
		return StructuredSummary{}, err
	}
	used = append(used, StageInputProcessing)

	var (
		mappings []SectionMapping
		missing  []SectionType
		entities []MedicalEntity
		temporal []TemporalMention
	)
	emit(progress, StageSectionClassification, "Classifying sections and extracting entities...")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.stage(gctx, StageSectionClassification, func(context.Context) error {
			mappings = p.classifier.Classify(text)
			missing = p.classifier.IdentifyMissingSections(mappings)
			return nil
		})
	})
	g.Go(func() error {
		return p.stage(gctx, StageEntityExtraction, func(context.Context) error {
			entities = p.extractor.ExtractEntities(text)
			temporal = p.extractor.ExtractTemporal(text)
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return StructuredSummary{}, err
	}
	used = append(used, StageSectionClassification, StageEntityExtraction)
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = string(m)
		}
		warnings = append(warnings, "Missing recommended sections: "+strings.Join(names, ", "))
	}

	var (
		sections []SummarizedSection
		gen      *GenerativeResult
		source   = SourceLocal
	)
	if p.summarizer != nil {
		emit(progress, StageGenerativeSummarization, "Requesting generative summary...")
		var res GenerativeResult
		err := p.stage(ctx, StageGenerativeSummarization, func(ctx context.Context) error {
			gctx, cancel := context.WithTimeout(ctx, p.generativeTimeout)
			defer cancel()
			var err error
			res, err = p.summarizer.Summarize(gctx, text)
			return err
		})
		switch {
		case err == nil:
			gen = &res
			sections = res.Sections
			source = SourceGenerative
			used = append(used, StageGenerativeSummarization)
		case p.fallback == FallbackAbort || ctx.Err() != nil:
			return StructuredSummary{}, err
		default:
			p.metrics.GenerativeFallback()
			p.logger.Warn("generative summary unavailable, using local summaries", zap.String("note_id", noteID), zap.Error(err))
			warnings = append(warnings, fmt.Sprintf("Generative summarization failed; local summaries used (%v)", errors.Unwrap(err)))
		}
	}
	if source == SourceLocal {
		emit(progress, StageLocalSummarization, "Summarizing sections...")
		if err := p.stage(ctx, StageLocalSummarization, func(context.Context) error {
			sections = p.local.SummarizeAll(mappings)
			if p.expandAbbreviations {
				for i := range sections {
					sections[i].Summary = p.extractor.ResolveAbbreviations(sections[i].Summary)
					for j, kp := range sections[i].KeyPoints {
						sections[i].KeyPoints[j] = p.extractor.ResolveAbbreviations(kp)
					}
				}
			}
			return nil
		}); err != nil {
			return StructuredSummary{}, err
		}
		used = append(used, StageLocalSummarization)
	}

	var flags []RedFlag
	emit(progress, StageRedFlagDetection, "Detecting red flags...")
	if err := p.stage(ctx, StageRedFlagDetection, func(context.Context) error {
		flags = p.detector.Detect(sections, entities)
		if gen != nil {
			for _, f := range gen.RedFlags {
				flags = append(flags, RedFlag{
					Type:             f.Type,
					Description:      f.Description,
					CriticalityLevel: f.CriticalityLevel,
					Rationale:        f.Rationale,
					RelatedEntities:  []MedicalEntity{},
				})
			}
		}
		return nil
	}); err != nil {
		return StructuredSummary{}, err
	}
	used = append(used, StageRedFlagDetection)

	var (
		hs        HandoffSummary
		formatted []SummarizedSection
	)
	emit(progress, StageOutputFormatting, "Building handoff summary...")
	if err := p.stage(ctx, StageOutputFormatting, func(context.Context) error {
		hs = p.formatter.GenerateHandoffSummary(sections, len(flags))
		hs.TimelineSummary = p.formatter.Timeline(temporal)
		if gen != nil {
			overlayGenerativeHandoff(&hs, gen.HandoffSummary)
		}
		formatted = p.formatter.FormatForReview(sections)
		return nil
	}); err != nil {
		return StructuredSummary{}, err
	}
	used = append(used, StageOutputFormatting)

	var validation SafetyValidation
	emit(progress, StageSafetyValidation, "Checking summary language...")
	if err := p.stage(ctx, StageSafetyValidation, func(context.Context) error {
		validation = p.safety.ValidateOutput(formatted)
		return nil
	}); err != nil {
		return StructuredSummary{}, err
	}
	used = append(used, StageSafetyValidation)

	transformation := TransformSectionExtraction
	if source == SourceLocal && p.expandAbbreviations {
		transformation = TransformAbbreviationExpansion
	}
	traces := make([]SourceTrace, 0, len(mappings))
	for _, m := range mappings {
		traces = append(traces, SourceTrace{SectionType: m.SectionType, Span: m.SourceSpan, Transformation: transformation})
	}
	var uncertainties []Uncertainty
	if gen != nil {
		uncertainties = gen.Uncertainties
	}

	finished := p.now()
	return StructuredSummary{
		ID:                uuid.NewString(),
		SourceNoteID:      noteID,
		GeneratedAt:       finished,
		Sections:          formatted,
		RedFlags:          flags,
		Uncertainties:     uncertainties,
		HandoffSummary:    hs,
		CompletenessScore: CompletenessScore(len(formatted)),
		SafetyValidation:  validation,
		ProcessingMetadata: ProcessingMetadata{
			ProcessingTimeMs:  finished.Sub(started).Milliseconds(),
			ComponentsUsed:    used,
			WarningsGenerated: warnings,
			SummarySource:     source,
			MissingSections:   missing,
		},
		NoteMetadata:       meta,
		Entities:           entities,
		SourceTraceability: traces,
	}, nil
}

// stage runs fn as the named stage. A cancelled context, an error from fn or a
// panic inside fn all come back as *StageError.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	if cerr := ctx.Err(); cerr != nil {
		return &StageError{Stage: name, Err: cerr}
	}
	ctx, span := p.tracer.Start(ctx, name)
	defer span.End()
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: name, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		elapsed := time.Since(started)
		p.metrics.StageCompleted(name, elapsed)
		p.logger.Debug("stage complete", zap.String("stage", name), zap.Duration("elapsed", elapsed))
	}()
	if ferr := fn(ctx); ferr != nil {
		return &StageError{Stage: name, Err: ferr}
	}
	return nil
}

// overlayGenerativeHandoff keeps the rule-derived priority, follow-ups and
// monitoring entry, and takes the model's overview and action items when
// present. Model pending actions are appended after the monitoring entry.
func overlayGenerativeHandoff(hs *HandoffSummary, gen GenerativeHandoff) {
	if s := strings.TrimSpace(gen.BriefOverview); s != "" {
		hs.BriefOverview = s
	}
	if len(gen.ActionItems) > 0 {
		items := gen.ActionItems
		if len(items) > MaxActionItems {
			items = items[:MaxActionItems]
		}
		hs.ActionItems = append([]string{}, items...)
	}
	if len(gen.PendingActions) > 0 {
		hs.PendingActions = append(hs.PendingActions, gen.PendingActions...)
	}
}

func emit(progress StageProgressFn, stage, message string) {
	if progress != nil {
		progress(stage, message)
	}
}
