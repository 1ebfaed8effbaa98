package provider

import (
	"context"
	"errors"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient implements Client with the official openai-go SDK (chat
// completions). Any OpenAI-compatible endpoint works through BaseURL.
type OpenAIClient struct {
	name   string
	model  string
	client openai.Client
}

func NewOpenAIClient(s Settings) (*OpenAIClient, error) {
	if s.APIKey == "" {
		return nil, errors.New(s.ID + ": api key missing; provide api_key")
	}
	if s.Model == "" {
		return nil, errors.New(s.ID + ": model is required")
	}
	// retries are the orchestrator's call, not the SDK's
	opts := []option.RequestOption{option.WithAPIKey(s.APIKey), option.WithMaxRetries(0)}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	if s.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(s.Timeout))
	}
	return &OpenAIClient{name: s.ID, model: s.Model, client: openai.NewClient(opts...)}, nil
}

func (o *OpenAIClient) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	model := o.model
	if opts.Model != "" {
		model = opts.Model
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &Error{Provider: o.name, StatusCode: apiErr.StatusCode, Message: apiErr.Message, Err: err}
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Provider: o.name, Message: "empty choices"}
	}
	return resp.Choices[0].Message.Content, nil
}
