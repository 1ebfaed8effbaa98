package generator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"wa_message_composer/provider"
	"wa_message_composer/whatsapp"
)

const (
	StrategySequential = "sequential"
	StrategyFanOut     = "fanout"
)

// ErrInvalidSlot is wrapped by the ValidationError for a slot outside 1..3.
var ErrInvalidSlot = errors.New("slot must be 1, 2 or 3")

// ValidationError rejects a request before any model call.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PipelineAbort records a required stage that failed for good.
type PipelineAbort struct {
	Strategy string
	Stage    string
	Err      error
}

func (e *PipelineAbort) Error() string {
	return fmt.Sprintf("%s pipeline aborted at %s: %v", e.Strategy, e.Stage, e.Err)
}

func (e *PipelineAbort) Unwrap() error { return e.Err }

// Config tunes the strategies.
type Config struct {
	// Providers are adapter ids. The sequential strategy uses the first;
	// fan-out slot i uses Providers[i % len(Providers)].
	Providers    []string
	Options      provider.Options
	StageRetries int
}

func (c Config) primary() string {
	if len(c.Providers) == 0 {
		return ""
	}
	return c.Providers[0]
}

// Strategy turns a prepared request into a result. Implementations never
// fail; degraded output is expressed with placeholders.
type Strategy interface {
	Name() string
	Generate(ctx context.Context, req GenerationRequest) GenerationResult
}

// Prepare trims and defaults req and validates it.
func Prepare(req GenerationRequest) (GenerationRequest, error) {
	req.SourceText = strings.TrimSpace(req.SourceText)
	for i := range req.SeedFields {
		req.SeedFields[i] = strings.TrimSpace(req.SeedFields[i])
	}
	if req.Media == "" {
		req.Media = MediaStandard
	}
	if req.Tone == "" {
		req.Tone = ToneProfessional
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return req, &ValidationError{Field: fe.Field(), Reason: describeField(fe), Err: err}
		}
		return req, &ValidationError{Field: "request", Reason: err.Error(), Err: err}
	}
	return req, nil
}

// Orchestrator validates requests and hands them to a named strategy.
type Orchestrator struct {
	strategies map[string]Strategy
	fallback   string
	logger     *zap.Logger
}

// NewOrchestrator registers strategies; the first one is the default.
func NewOrchestrator(logger *zap.Logger, def Strategy, others ...Strategy) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		strategies: map[string]Strategy{def.Name(): def},
		fallback:   def.Name(),
		logger:     logger,
	}
	for _, s := range others {
		o.strategies[s.Name()] = s
	}
	return o
}

// Generate runs the default strategy.
func (o *Orchestrator) Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	return o.GenerateWith(ctx, "", req)
}

// GenerateWith runs the named strategy, or the default when name is
// empty. Only *ValidationError is ever returned; every variation is
// normalized, placeholders included.
func (o *Orchestrator) GenerateWith(ctx context.Context, name string, req GenerationRequest) (GenerationResult, error) {
	if name == "" {
		name = o.fallback
	}
	strategy, ok := o.strategies[name]
	if !ok {
		return GenerationResult{}, &ValidationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", name)}
	}
	req, err := Prepare(req)
	if err != nil {
		return GenerationResult{}, err
	}

	res := strategy.Generate(ctx, req)
	res.Variations = whatsapp.NormalizeAll(res.Variations)
	o.logger.Info("generation finished",
		zap.String("strategy", name),
		zap.String("category", string(req.Category)),
		zap.Int("placeholders", countPlaceholders(res.Variations)),
	)
	return res, nil
}

// Strategies lists the registered strategy names, sorted.
func (o *Orchestrator) Strategies() []string {
	names := make([]string, 0, len(o.strategies))
	for n := range o.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func countPlaceholders(v [3]string) int {
	n := 0
	for _, s := range v {
		if s == whatsapp.Placeholder {
			n++
		}
	}
	return n
}

func requestBindings(req GenerationRequest) map[string]any {
	return map[string]any{
		"request": req,
		"seeds":   describeSeeds(req.SeedFields),
		"pattern": layoutFor(req.Category),
	}
}
