package provider

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient implements Client on the Gemini API.
type GeminiClient struct {
	name   string
	model  string
	client *genai.Client
}

func NewGeminiClient(ctx context.Context, s Settings) (*GeminiClient, error) {
	if s.APIKey == "" {
		return nil, errors.New(s.ID + ": api key missing; provide api_key")
	}
	if s.Model == "" {
		return nil, errors.New(s.ID + ": model is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  s.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if s.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: s.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &GeminiClient{name: s.ID, model: s.Model, client: client}, nil
}

func (g *GeminiClient) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	system, turns := splitSystem(messages)

	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if opts.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}

	model := g.model
	if opts.Model != "" {
		model = opts.Model
	}
	result, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", err
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", &Error{Provider: g.name, Message: "no candidates returned"}
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
