package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wa_message_composer/provider"
)

// clearEnv unsets every variable the loader reads for the duration of t.
func clearEnv(t *testing.T) {
	t.Helper()
	names := []string{"SERVER_ADDR", "PIPELINE_STRATEGY", "PIPELINE_STAGE_RETRIES", "SINK_KIND", "DATABASE_URL", "LOG_LEVEL"}
	for _, n := range keyEnv {
		names = append(names, n)
	}
	for _, n := range names {
		t.Setenv(n, "")
		os.Unsetenv(n)
	}
	// keep godotenv from picking up a developer's .env
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("does-not-exist.yaml")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 90*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "sequential", cfg.Pipeline.Strategy)
	assert.Equal(t, 0.7, cfg.Pipeline.Temperature)
	assert.Equal(t, 1024, cfg.Pipeline.MaxTokens)
	assert.Equal(t, "file", cfg.Sink.Kind)
	assert.Empty(t, cfg.Providers)

	err = cfg.Validate()
	assert.ErrorContains(t, err, "no providers configured")
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "composer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
  request_timeout: 45s
pipeline:
  strategy: fanout
  providers: [openai, gemini]
  stage_retries: 1
providers:
  - id: openai
    model: gpt-4o-mini
  - id: gemini
    model: gemini-2.0-flash
    api_key: from-file
sink:
  kind: postgres
`), 0o644))

	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("GEMINI_API_KEY", "gm-env")
	t.Setenv("DATABASE_URL", "postgres://localhost/composer")
	t.Setenv("SERVER_ADDR", ":9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, 45*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "fanout", cfg.Pipeline.Strategy)
	assert.Equal(t, 1, cfg.Pipeline.StageRetries)
	assert.Equal(t, "sk-env", cfg.Providers[0].APIKey)
	assert.Equal(t, "gm-env", cfg.Providers[1].APIKey)
	assert.Equal(t, "postgres://localhost/composer", cfg.Sink.DatabaseURL)
	assert.Equal(t, []string{"openai", "gemini"}, cfg.PipelineProviders())
}

func TestEnvOnlyProviders(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "ak")
	t.Setenv("DEEPSEEK_API_KEY", "dk")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"anthropic", "deepseek"}, cfg.PipelineProviders())
	assert.Equal(t, "deepseek-chat", cfg.Providers[1].Model)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cfg := DefaultConfig()
	cfg.Pipeline.Strategy = "roundrobin"
	cfg.Pipeline.Providers = []string{"ghost"}
	cfg.Sink.Kind = "postgres"
	cfg.Providers = []provider.Settings{
		{ID: "openai", Model: "gpt-4o-mini"},
		{ID: "offline", Kind: "mock"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "Strategy")
	assert.Contains(t, msg, "api key missing; set OPENAI_API_KEY")
	assert.Contains(t, msg, "pipeline provider ghost is not configured")
	assert.Contains(t, msg, "database_url")
	assert.NotContains(t, msg, "provider offline")
}

func TestLoadRejectsBadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}
