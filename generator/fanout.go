package generator

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wa_message_composer/whatsapp"
)

// FanOut runs one intent call, then three message calls concurrently,
// spread across the configured providers. A failed slot degrades to the
// placeholder without touching its siblings.
type FanOut struct {
	r         runner
	cfg       Config
	intent    Stage[FanOutIntent]
	providers []string
	logger    *zap.Logger
}

func NewFanOut(inv Invoker, cfg Config, logger *zap.Logger) *FanOut {
	if logger == nil {
		logger = zap.NewNop()
	}
	providers := cfg.Providers
	if len(providers) == 0 {
		providers = []string{""}
	}
	return &FanOut{
		r:   runner{inv: inv, retries: cfg.StageRetries, logger: logger},
		cfg: cfg,
		intent: Stage[FanOutIntent]{
			Name:     "fanout-intent",
			Provider: providers[0],
			Options:  cfg.Options,
			System:   fanOutIntentSystem,
			User:     intentUser,
		},
		providers: providers,
		logger:    logger,
	}
}

func (f *FanOut) Name() string { return StrategyFanOut }

// Generate does not include the analysis in the result.
func (f *FanOut) Generate(ctx context.Context, req GenerationRequest) GenerationResult {
	plan := f.analyze(ctx, req)

	var (
		res GenerationResult
		g   errgroup.Group
	)
	for i := range res.Variations {
		g.Go(func() error {
			// each slot writes only its own index
			res.Variations[i] = f.slot(ctx, req, plan, i)
			return nil
		})
	}
	_ = g.Wait()
	return res
}

// GenerateSlot runs the intent call and only the message call of slot
// (0-based). Used by regeneration.
func (f *FanOut) GenerateSlot(ctx context.Context, req GenerationRequest, slot int) string {
	plan := f.analyze(ctx, req)
	return f.slot(ctx, req, plan, slot)
}

func (f *FanOut) analyze(ctx context.Context, req GenerationRequest) FanOutIntent {
	out, err := runStage(ctx, f.r, f.intent, requestBindings(req))
	if err != nil {
		f.logger.Warn("fan-out intent failed, using fallback", zap.Error(err))
		return FanOutIntent{Analysis: FallbackAnalysis(), Suggestions: fallbackSuggestions()}
	}
	return out
}

func (f *FanOut) slot(ctx context.Context, req GenerationRequest, plan FanOutIntent, i int) string {
	providerID := f.providers[i%len(f.providers)]
	st := Stage[SlotMessage]{
		Name:     fmt.Sprintf("message-%d", i+1),
		Provider: providerID,
		Options:  f.cfg.Options,
		System:   fanOutMessageSystem,
		User:     fanOutMessageUser,
	}

	b := requestBindings(req)
	b["analysis"] = plan.Analysis
	b["suggestion"] = plan.Suggestions[i]
	b["slot"] = i + 1
	b["seed"] = seedOrNone(req.SeedFields[i])

	out, err := runStage(ctx, f.r, st, b)
	if err != nil {
		f.logger.Warn("slot failed", zap.Int("slot", i+1), zap.String("provider", providerID), zap.Error(err))
		return whatsapp.Placeholder
	}
	if err := whatsapp.CheckPattern(req.Category, whatsapp.Normalize(out.Message)); err != nil {
		f.logger.Warn("slot output does not match category layout",
			zap.Int("slot", i+1), zap.String("provider", providerID), zap.Error(err))
	}
	return out.Message
}

func seedOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
