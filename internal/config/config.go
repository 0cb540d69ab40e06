package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joelkehle/clinical-handoff/internal/handoff"
)

const EnvPrefix = "HANDOFF"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	Rules   RulesConfig   `mapstructure:"rules"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Export  ExportConfig  `mapstructure:"export"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LLMConfig struct {
	Disabled bool          `mapstructure:"disabled"`
	Models   []string      `mapstructure:"models"`
	Fallback string        `mapstructure:"fallback"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type JobsConfig struct {
	Store     string `mapstructure:"store"`
	Path      string `mapstructure:"path"`
	Workers   int    `mapstructure:"workers"`
	QueueSize int    `mapstructure:"queue_size"`
}

type RulesConfig struct {
	Path                string `mapstructure:"path"`
	ExpandAbbreviations bool   `mapstructure:"expand_abbreviations"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type ExportConfig struct {
	ChromePath string        `mapstructure:"chrome_path"`
	PDFTimeout time.Duration `mapstructure:"pdf_timeout"`
}

// Load reads configuration from defaults, an optional YAML file at path, and
// HANDOFF_* environment variables, in increasing precedence. Nested keys map
// to env names with dots replaced by underscores (llm.timeout is
// HANDOFF_LLM_TIMEOUT).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("llm.disabled", false)
	v.SetDefault("llm.models", handoff.DefaultSummaryModels)
	v.SetDefault("llm.fallback", string(handoff.FallbackLocal))
	v.SetDefault("llm.timeout", handoff.DefaultGenerativeTimeout)
	v.SetDefault("jobs.store", "memory")
	v.SetDefault("jobs.path", "handoff.db")
	v.SetDefault("jobs.workers", 4)
	v.SetDefault("jobs.queue_size", 64)
	v.SetDefault("rules.path", "")
	v.SetDefault("rules.expand_abbreviations", false)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", "clinical-handoff")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("export.chrome_path", "")
	v.SetDefault("export.pdf_timeout", 45*time.Second)

	// HANDOFF_NO_LLM is the switch the summarizer itself honours.
	_ = v.BindEnv("llm.disabled", EnvPrefix+"_LLM_DISABLED", EnvPrefix+"_NO_LLM")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be \"json\" or \"console\", got %q", c.Log.Format)
	}
	if _, err := handoff.ParseFallbackPolicy(c.LLM.Fallback); err != nil {
		return fmt.Errorf("llm.fallback: %w", err)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive, got %s", c.LLM.Timeout)
	}
	if !c.LLM.Disabled && len(c.LLM.Models) == 0 {
		return fmt.Errorf("llm.models must name at least one model when the generative path is enabled")
	}
	switch c.Jobs.Store {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Jobs.Path) == "" {
			return fmt.Errorf("jobs.path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("jobs.store must be \"memory\" or \"sqlite\", got %q", c.Jobs.Store)
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("jobs.workers must be at least 1, got %d", c.Jobs.Workers)
	}
	if c.Jobs.QueueSize < 1 {
		return fmt.Errorf("jobs.queue_size must be at least 1, got %d", c.Jobs.QueueSize)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be within [0,1], got %v", c.Tracing.SampleRate)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	return nil
}

func (c *Config) FallbackPolicy() handoff.FallbackPolicy {
	p, _ := handoff.ParseFallbackPolicy(c.LLM.Fallback)
	return p
}
