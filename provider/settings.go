package provider

import (
	"context"
	"fmt"
	"time"
)

// Settings configures one backend.
type Settings struct {
	ID      string        `yaml:"id"`
	Kind    string        `yaml:"kind"`
	Model   string        `yaml:"model"`
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// OpenAI-compatible gateways reachable through the openai backend.
var compatibleBaseURLs = map[string]string{
	"deepseek":   "https://api.deepseek.com/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"openrouter": "https://openrouter.ai/api/v1",
}

// KindOf returns the backend kind for s; it defaults to the id.
func (s Settings) KindOf() string {
	if s.Kind != "" {
		return s.Kind
	}
	return s.ID
}

// NeedsKey reports whether the backend requires an API key.
func (s Settings) NeedsKey() bool {
	return s.KindOf() != "mock"
}

// NewClient builds the backend described by s.
func NewClient(ctx context.Context, s Settings) (Client, error) {
	switch kind := s.KindOf(); kind {
	case "openai":
		return NewOpenAIClient(s)
	case "deepseek", "groq", "openrouter":
		if s.BaseURL == "" {
			s.BaseURL = compatibleBaseURLs[kind]
		}
		return NewOpenAIClient(s)
	case "gemini":
		return NewGeminiClient(ctx, s)
	case "anthropic":
		return NewAnthropicClient(s)
	case "mock":
		return &Mock{}, nil
	default:
		return nil, fmt.Errorf("provider %s: kind %q not supported", s.ID, kind)
	}
}
