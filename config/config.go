// Package config loads service settings from a YAML file, a .env file and
// the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"wa_message_composer/provider"
)

type Config struct {
	Server    ServerConfig        `yaml:"server"`
	Pipeline  PipelineConfig      `yaml:"pipeline"`
	Providers []provider.Settings `yaml:"providers"`
	Sink      SinkConfig          `yaml:"sink"`
	Logging   LoggingConfig       `yaml:"logging"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr" validate:"required"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
}

type PipelineConfig struct {
	Strategy string `yaml:"strategy" validate:"oneof=sequential fanout"`
	// Providers are the ids used by the pipeline, in slot order. Empty
	// means every configured provider.
	Providers    []string `yaml:"providers"`
	StageRetries int      `yaml:"stage_retries" validate:"gte=0,lte=3"`
	Temperature  float64  `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens    int      `yaml:"max_tokens" validate:"gte=0"`
}

type SinkConfig struct {
	Kind         string         `yaml:"kind" validate:"oneof=file postgres dynamodb"`
	Path         string         `yaml:"path"`
	DatabaseURL  string         `yaml:"database_url"`
	DynamoDB     DynamoDBConfig `yaml:"dynamodb"`
	WriteTimeout time.Duration  `yaml:"write_timeout"`
}

type DynamoDBConfig struct {
	Region         string `yaml:"region"`
	FeedbackTable  string `yaml:"feedback_table"`
	AnalyticsTable string `yaml:"analytics_table"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// DefaultConfig returns the built-in defaults. No provider is configured
// and no credential is embedded.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 90 * time.Second,
		},
		Pipeline: PipelineConfig{
			Strategy:    "sequential",
			Temperature: 0.7,
			MaxTokens:   1024,
		},
		Sink: SinkConfig{
			Kind:         "file",
			Path:         filepath.Join("data", "composer.json"),
			WriteTimeout: 10 * time.Second,
			DynamoDB: DynamoDBConfig{
				FeedbackTable:  "message_feedback",
				AnalyticsTable: "message_analytics",
			},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path (optional; a missing file means defaults), then .env,
// then environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	// a missing .env is fine
	_ = godotenv.Load()
	cfg.applyEnvOverrides()
	return cfg, nil
}

// keyEnv maps provider kinds to the variable holding their API key.
var keyEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"groq":       "GROQ_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// defaultModels are used for providers enabled only through the environment.
var defaultModels = map[string]string{
	"openai":     "gpt-4o-mini",
	"gemini":     "gemini-2.0-flash",
	"anthropic":  "claude-3-5-haiku-latest",
	"deepseek":   "deepseek-chat",
	"groq":       "llama-3.3-70b-versatile",
	"openrouter": "openai/gpt-4o-mini",
}

// envProviderOrder keeps auto-configured providers deterministic.
var envProviderOrder = []string{"openai", "gemini", "anthropic", "deepseek", "groq", "openrouter"}

func (c *Config) applyEnvOverrides() {
	for i := range c.Providers {
		p := &c.Providers[i]
		if name, ok := keyEnv[p.KindOf()]; ok {
			if key := os.Getenv(name); key != "" {
				p.APIKey = key
			}
		}
	}
	if len(c.Providers) == 0 {
		for _, kind := range envProviderOrder {
			if key := os.Getenv(keyEnv[kind]); key != "" {
				c.Providers = append(c.Providers, provider.Settings{ID: kind, Kind: kind, Model: defaultModels[kind], APIKey: key})
			}
		}
	}

	if v := os.Getenv("SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PIPELINE_STRATEGY"); v != "" {
		c.Pipeline.Strategy = v
	}
	if v := os.Getenv("PIPELINE_STAGE_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.StageRetries = n
		}
	}
	if v := os.Getenv("SINK_KIND"); v != "" {
		c.Sink.Kind = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Sink.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// PipelineProviders returns the provider ids the pipeline should use.
func (c *Config) PipelineProviders() []string {
	if len(c.Pipeline.Providers) > 0 {
		return c.Pipeline.Providers
	}
	ids := make([]string, 0, len(c.Providers))
	for _, p := range c.Providers {
		ids = append(ids, p.ID)
	}
	return ids
}

var validate = validator.New()

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		errs = append(errs, err)
	}

	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("no providers configured; set providers in the config file or an API key variable such as OPENAI_API_KEY"))
	}
	known := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.ID == "" {
			errs = append(errs, errors.New("provider without id"))
			continue
		}
		if known[p.ID] {
			errs = append(errs, fmt.Errorf("provider %s configured twice", p.ID))
		}
		known[p.ID] = true
		if p.NeedsKey() && p.APIKey == "" {
			hint := "api_key"
			if name, ok := keyEnv[p.KindOf()]; ok {
				hint = name
			}
			errs = append(errs, fmt.Errorf("provider %s: api key missing; set %s", p.ID, hint))
		}
		if p.NeedsKey() && p.Model == "" {
			errs = append(errs, fmt.Errorf("provider %s: model is required", p.ID))
		}
	}
	for _, id := range c.Pipeline.Providers {
		if !known[id] {
			errs = append(errs, fmt.Errorf("pipeline provider %s is not configured", id))
		}
	}

	switch c.Sink.Kind {
	case "file":
		if c.Sink.Path == "" {
			errs = append(errs, errors.New("sink.path is required for the file sink"))
		}
	case "postgres":
		if c.Sink.DatabaseURL == "" {
			errs = append(errs, errors.New("sink.database_url (or DATABASE_URL) is required for the postgres sink"))
		}
	case "dynamodb":
		if c.Sink.DynamoDB.FeedbackTable == "" || c.Sink.DynamoDB.AnalyticsTable == "" {
			errs = append(errs, errors.New("sink.dynamodb needs feedback_table and analytics_table"))
		}
	}
	return errors.Join(errs...)
}
