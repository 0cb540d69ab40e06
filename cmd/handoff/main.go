package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/joelkehle/clinical-handoff/internal/config"
	"github.com/joelkehle/clinical-handoff/internal/export"
	"github.com/joelkehle/clinical-handoff/internal/extract"
	"github.com/joelkehle/clinical-handoff/internal/handoff"
	"github.com/joelkehle/clinical-handoff/internal/httpapi"
	"github.com/joelkehle/clinical-handoff/internal/jobs"
	"github.com/joelkehle/clinical-handoff/internal/telemetry"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "handoff",
		Short:        "Clinical handoff summarizer",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(summarizeCmd(&configPath))
	root.AddCommand(sanitizeCmd(&configPath))
	root.AddCommand(rulesCmd(&configPath))
	return root
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and job workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			tp, err := telemetry.InitTracer(ctx, telemetry.TracingConfig{
				Enabled:     cfg.Tracing.Enabled,
				Endpoint:    cfg.Tracing.Endpoint,
				Insecure:    cfg.Tracing.Insecure,
				ServiceName: cfg.Tracing.ServiceName,
				SampleRate:  cfg.Tracing.SampleRate,
			})
			if err != nil {
				return err
			}
			defer func() {
				sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer scancel()
				_ = tp.Shutdown(sctx)
			}()

			metrics := telemetry.NewCollector("handoff")
			pipeline, generative, err := buildPipeline(cfg, logger, metrics)
			if err != nil {
				return err
			}

			store, closeStore, err := openStore(cfg.Jobs)
			if err != nil {
				return err
			}
			defer closeStore()

			runner := jobs.NewRunner(store, pipeline, jobs.RunnerConfig{
				Workers:      cfg.Jobs.Workers,
				QueueSize:    cfg.Jobs.QueueSize,
				Logger:       logger,
				OnQueueDepth: func(n int) { metrics.JobsQueued.Set(float64(n)) },
			})
			runner.Start(ctx)

			srv := &http.Server{
				Addr: cfg.Server.Addr,
				Handler: httpapi.NewServer(httpapi.Deps{
					Pipeline:       pipeline,
					Runner:         runner,
					PDF:            export.NewChromiumPDFRenderer(cfg.Export.ChromePath, cfg.Export.PDFTimeout),
					Metrics:        metrics,
					Logger:         logger,
					MaxUploadBytes: cfg.Server.MaxUploadBytes,
					Generative:     generative,
				}),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting server",
					zap.String("addr", cfg.Server.Addr),
					zap.String("job_store", cfg.Jobs.Store),
					zap.Bool("generative", generative))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				logger.Info("shutting down")
				sctx, scancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer scancel()
				if err := srv.Shutdown(sctx); err != nil {
					logger.Error("http shutdown", zap.Error(err))
				}
			}
			runner.Stop()
			return nil
		},
	}
}

func summarizeCmd(configPath *string) *cobra.Command {
	var (
		format string
		out    string
		noteID string
	)
	cmd := &cobra.Command{
		Use:   "summarize <file>",
		Short: "Summarize a note file (.txt, .md, .pdf, .docx)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "json", "markdown":
			case "pdf":
				if out == "" {
					return fmt.Errorf("--format pdf requires --out")
				}
			default:
				return fmt.Errorf("unknown format %q (want json, markdown or pdf)", format)
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := telemetry.NewLogger(cfg.Log.Level, "console")
			if err != nil {
				return err
			}
			defer logger.Sync()

			text, err := extract.Extract(args[0])
			if err != nil {
				return err
			}
			pipeline, _, err := buildPipeline(cfg, logger, nil)
			if err != nil {
				return err
			}
			if noteID == "" {
				noteID = filepath.Base(args[0])
			}
			summary, err := pipeline.Process(cmd.Context(), handoff.NoteRequest{NoteID: noteID, Text: text})
			if err != nil {
				var ve *handoff.ValidationError
				if errors.As(err, &ve) {
					for _, w := range ve.Warnings {
						fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
					}
				}
				return err
			}

			var payload []byte
			switch format {
			case "json":
				payload, err = json.MarshalIndent(summary, "", "  ")
				if err != nil {
					return err
				}
				payload = append(payload, '\n')
			case "markdown":
				payload = []byte(handoff.BuildReportMarkdown(summary))
			case "pdf":
				renderer := export.NewChromiumPDFRenderer(cfg.Export.ChromePath, cfg.Export.PDFTimeout)
				payload, err = renderer.Render(cmd.Context(), handoff.BuildReportMarkdown(summary))
				if err != nil {
					return err
				}
			}
			return writeOutput(cmd.OutOrStdout(), out, payload)
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json, markdown or pdf")
	cmd.Flags().StringVar(&out, "out", "", "write output to this file instead of stdout")
	cmd.Flags().StringVar(&noteID, "note-id", "", "note identifier (defaults to the file name)")
	return cmd
}

func sanitizeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sanitize <file|->",
		Short: "Replace prescriptive and diagnostic phrasing in text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			var text string
			if args[0] == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(b)
			} else if text, err = extract.Extract(args[0]); err != nil {
				return err
			}
			rules, err := loadRules(cfg.Rules)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), handoff.NewPipeline(rules).Sanitize(text))
			return err
		},
	}
}

func rulesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the effective rule table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			rules, err := loadRules(cfg.Rules)
			if err != nil {
				return err
			}
			b, err := rules.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func loadRules(cfg config.RulesConfig) (*handoff.Rules, error) {
	if cfg.Path == "" {
		return handoff.DefaultRules(), nil
	}
	return handoff.LoadRules(cfg.Path)
}

// buildPipeline wires the pipeline from config. The generative path is
// enabled only when it is not switched off and an API key is present;
// otherwise the pipeline runs local-only.
func buildPipeline(cfg *config.Config, logger *zap.Logger, metrics handoff.Metrics) (*handoff.Pipeline, bool, error) {
	rules, err := loadRules(cfg.Rules)
	if err != nil {
		return nil, false, err
	}
	opts := []handoff.Option{
		handoff.WithLogger(logger),
		handoff.WithTracer(otel.Tracer("github.com/joelkehle/clinical-handoff")),
		handoff.WithFallbackPolicy(cfg.FallbackPolicy()),
		handoff.WithGenerativeTimeout(cfg.LLM.Timeout),
		handoff.WithAbbreviationExpansion(cfg.Rules.ExpandAbbreviations),
	}
	if metrics != nil {
		opts = append(opts, handoff.WithMetrics(metrics))
	}
	generative := false
	if !cfg.LLM.Disabled {
		s, err := handoff.NewAnthropicSummarizerFromEnv(cfg.LLM.Models, logger)
		switch {
		case errors.Is(err, handoff.ErrNoSummarizer):
			logger.Warn("generative summarizer unavailable, running local-only", zap.Error(err))
		case err != nil:
			return nil, false, err
		default:
			opts = append(opts, handoff.WithSummarizer(s))
			generative = true
		}
	}
	return handoff.NewPipeline(rules, opts...), generative, nil
}

func openStore(cfg config.JobsConfig) (jobs.Store, func(), error) {
	if cfg.Store == "sqlite" {
		s, err := jobs.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	return jobs.NewMemoryStore(), func() {}, nil
}

func writeOutput(stdout io.Writer, path string, payload []byte) error {
	if path == "" {
		_, err := stdout.Write(payload)
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}
