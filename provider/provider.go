// Package provider puts the hosted text-generation backends behind one
// request/response shape.
package provider

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Message is one chat turn sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Options tunes a single call. Zero values mean "backend default".
type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string
}

// Client is implemented by every backend.
type Client interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}

// ErrUnknownProvider is returned (wrapped in *Error) for an unregistered id.
var ErrUnknownProvider = errors.New("unknown provider")

// Error describes a failed backend call.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Adapter routes calls to registered backends by provider id. It never
// retries; retry policy belongs to the caller.
type Adapter struct {
	mu      sync.RWMutex
	clients map[string]Client
	logger  *zap.Logger
}

func NewAdapter(logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{clients: make(map[string]Client), logger: logger}
}

// Register adds or replaces the backend for id.
func (a *Adapter) Register(id string, c Client) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clients[id] = c
}

// Providers returns the registered ids, sorted.
func (a *Adapter) Providers() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]string, 0, len(a.clients))
	for id := range a.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Invoke sends messages to the backend registered as providerID and
// returns its text with any reasoning trace removed.
func (a *Adapter) Invoke(ctx context.Context, providerID string, messages []Message, opts Options) (string, error) {
	a.mu.RLock()
	client, ok := a.clients[providerID]
	a.mu.RUnlock()
	if !ok {
		return "", &Error{Provider: providerID, Message: "not configured", Err: ErrUnknownProvider}
	}

	start := time.Now()
	raw, err := client.Complete(ctx, messages, opts)
	log := a.logger.With(
		zap.String("provider", providerID),
		zap.String("model", opts.Model),
		zap.Duration("latency", time.Since(start)),
	)
	if err != nil {
		perr := asProviderError(providerID, err)
		log.Warn("provider call failed", zap.Int("status", perr.StatusCode), zap.Error(err))
		return "", perr
	}

	content := StripThinking(raw)
	if content == "" {
		log.Warn("provider returned empty content")
		return "", &Error{Provider: providerID, Message: "empty response"}
	}
	log.Debug("provider call done", zap.Int("chars", len(content)))
	return content, nil
}

func asProviderError(providerID string, err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		if perr.Provider == "" {
			perr.Provider = providerID
		}
		return perr
	}
	return &Error{Provider: providerID, Message: err.Error(), Err: err}
}

var (
	thinkBlockRe    = regexp.MustCompile(`(?s)<think>.*?</think>`)
	danglingThinkRe = regexp.MustCompile(`(?s)^\s*<think>.*$`)
)

// StripThinking removes <think>…</think> blocks some reasoning models emit
// ahead of their answer. An unterminated leading block is dropped whole.
func StripThinking(s string) string {
	s = thinkBlockRe.ReplaceAllString(s, "")
	s = danglingThinkRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// splitSystem separates system turns from the conversation for backends
// that take the system prompt out of band.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	var rest []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
