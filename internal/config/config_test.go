package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joelkehle/clinical-handoff/internal/handoff"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr=%q", cfg.Server.Addr)
	}
	if cfg.Jobs.Store != "memory" || cfg.Jobs.Workers != 4 {
		t.Fatalf("unexpected jobs config: %+v", cfg.Jobs)
	}
	if cfg.LLM.Timeout != handoff.DefaultGenerativeTimeout || len(cfg.LLM.Models) != len(handoff.DefaultSummaryModels) {
		t.Fatalf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.FallbackPolicy() != handoff.FallbackLocal {
		t.Fatalf("fallback=%s", cfg.FallbackPolicy())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HANDOFF_SERVER_ADDR", ":9999")
	t.Setenv("HANDOFF_LLM_TIMEOUT", "15s")
	t.Setenv("HANDOFF_LLM_FALLBACK", "abort")
	t.Setenv("HANDOFF_JOBS_WORKERS", "2")
	t.Setenv("HANDOFF_NO_LLM", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":9999" || cfg.LLM.Timeout != 15*time.Second || cfg.Jobs.Workers != 2 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.FallbackPolicy() != handoff.FallbackAbort {
		t.Fatalf("fallback=%s", cfg.FallbackPolicy())
	}
	if !cfg.LLM.Disabled {
		t.Fatal("HANDOFF_NO_LLM should disable the generative path")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handoff.yaml")
	body := `
jobs:
  store: sqlite
  path: /var/lib/handoff/jobs.db
rules:
  expand_abbreviations: true
log:
  format: console
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Jobs.Store != "sqlite" || cfg.Jobs.Path != "/var/lib/handoff/jobs.db" {
		t.Fatalf("unexpected jobs config: %+v", cfg.Jobs)
	}
	if !cfg.Rules.ExpandAbbreviations || cfg.Log.Format != "console" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Log:    LogConfig{Level: "info", Format: "json"},
			LLM:    LLMConfig{Models: []string{"m"}, Fallback: "local", Timeout: time.Second},
			Jobs:   JobsConfig{Store: "memory", Workers: 1, QueueSize: 1},
			Server: ServerConfig{MaxUploadBytes: 1},
		}
	}
	ok := base()
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for name, mutate := range map[string]func(*Config){
		"log format":      func(c *Config) { c.Log.Format = "xml" },
		"fallback":        func(c *Config) { c.LLM.Fallback = "retry" },
		"timeout":         func(c *Config) { c.LLM.Timeout = 0 },
		"no models":       func(c *Config) { c.LLM.Models = nil },
		"store":           func(c *Config) { c.Jobs.Store = "redis" },
		"sqlite path":     func(c *Config) { c.Jobs.Store, c.Jobs.Path = "sqlite", "" },
		"workers":         func(c *Config) { c.Jobs.Workers = 0 },
		"queue":           func(c *Config) { c.Jobs.QueueSize = 0 },
		"sample rate":     func(c *Config) { c.Tracing.SampleRate = 2 },
		"max upload size": func(c *Config) { c.Server.MaxUploadBytes = 0 },
	} {
		c := base()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	disabled := base()
	disabled.LLM.Disabled, disabled.LLM.Models = true, nil
	if err := disabled.Validate(); err != nil {
		t.Fatalf("disabled generative path needs no models: %v", err)
	}
}
