package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAnthropicURL = "https://api.anthropic.com"
	anthropicVersion    = "2023-06-01"
	// the Messages API requires max_tokens
	defaultAnthropicMaxTokens = 1024
)

// AnthropicClient calls the Anthropic Messages API directly over HTTP.
type AnthropicClient struct {
	name    string
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

func NewAnthropicClient(s Settings) (*AnthropicClient, error) {
	if s.APIKey == "" {
		return nil, errors.New(s.ID + ": api key missing; provide api_key")
	}
	if s.Model == "" {
		return nil, errors.New(s.ID + ": model is required")
	}
	baseURL := strings.TrimRight(s.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &AnthropicClient{
		name:    s.ID,
		apiKey:  s.APIKey,
		baseURL: baseURL,
		model:   s.Model,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *AnthropicClient) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	system, turns := splitSystem(messages)

	payload := anthropicRequest{
		Model:     c.model,
		MaxTokens: defaultAnthropicMaxTokens,
		System:    system,
	}
	if opts.Model != "" {
		payload.Model = opts.Model
	}
	if opts.MaxTokens > 0 {
		payload.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		t := opts.Temperature
		payload.Temperature = &t
	}
	for _, m := range turns {
		role := RoleUser
		if m.Role == RoleAssistant {
			role = RoleAssistant
		}
		payload.Messages = append(payload.Messages, anthropicMessage{Role: role, Content: m.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed anthropicResponse
	jsonErr := json.Unmarshal(data, &parsed)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if jsonErr == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", &Error{Provider: c.name, StatusCode: resp.StatusCode, Message: msg}
	}
	if jsonErr != nil {
		return "", &Error{Provider: c.name, StatusCode: resp.StatusCode, Message: "malformed response", Err: jsonErr}
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &Error{Provider: c.name, StatusCode: resp.StatusCode, Message: "empty content"}
	}
	return sb.String(), nil
}
