package generator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"wa_message_composer/provider"
	"wa_message_composer/whatsapp"
)

// runContext is the state threaded through the sequential stages. Each
// with* method returns an extended copy; earlier artifacts are never
// touched again.
type runContext struct {
	Request  GenerationRequest
	Analysis IntentAnalysis
	Creative *CreativeSet
	Plans    *StructureSet
}

func (rc runContext) withAnalysis(a IntentAnalysis) runContext {
	rc.Analysis = a
	return rc
}

func (rc runContext) withCreative(c CreativeSet) runContext {
	rc.Creative = &c
	return rc
}

func (rc runContext) withPlans(p StructureSet) runContext {
	rc.Plans = &p
	return rc
}

func (rc runContext) bindings() map[string]any {
	b := requestBindings(rc.Request)
	b["analysis"] = rc.Analysis
	if rc.Creative != nil {
		b["creative"] = rc.Creative
	}
	if rc.Plans != nil {
		b["plans"] = rc.Plans
	}
	return b
}

// Sequential runs intent -> copy -> structure -> format. Intent failures
// fall back; any later failure aborts the run.
type Sequential struct {
	r         runner
	intent    Stage[IntentAnalysis]
	creative  Stage[CreativeSet]
	structure Stage[StructureSet]
	opts      provider.Options
	provider  string
	logger    *zap.Logger
}

func NewSequential(inv Invoker, cfg Config, logger *zap.Logger) *Sequential {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := cfg.primary()
	return &Sequential{
		r:         runner{inv: inv, retries: cfg.StageRetries, logger: logger},
		intent:    Stage[IntentAnalysis]{Name: "intent", Provider: p, Options: cfg.Options, System: intentSystem, User: intentUser},
		creative:  Stage[CreativeSet]{Name: "copy", Provider: p, Options: cfg.Options, System: copySystem, User: copyUser},
		structure: Stage[StructureSet]{Name: "structure", Provider: p, Options: cfg.Options, System: structureSystem, User: structureUser},
		opts:      cfg.Options,
		provider:  p,
		logger:    logger,
	}
}

func (s *Sequential) Name() string { return StrategySequential }

func (s *Sequential) Generate(ctx context.Context, req GenerationRequest) GenerationResult {
	rc := runContext{Request: req}

	analysis, err := runStage(ctx, s.r, s.intent, rc.bindings())
	if err != nil {
		s.logger.Warn("intent analysis failed, using fallback", zap.Error(err))
		analysis = FallbackAnalysis()
	}
	rc = rc.withAnalysis(analysis)

	creative, err := runStage(ctx, s.r, s.creative, rc.bindings())
	if err != nil {
		return s.abort("copy", err)
	}
	rc = rc.withCreative(creative)

	plans, err := runStage(ctx, s.r, s.structure, rc.bindings())
	if err != nil {
		return s.abort("structure", err)
	}
	rc = rc.withPlans(plans)

	formatted, err := runStage(ctx, s.r, s.formatStage(req.Category), rc.bindings())
	if err != nil {
		return s.abort("format", err)
	}

	res := GenerationResult{Analysis: &rc.Analysis}
	copy(res.Variations[:], formatted.Messages)
	return res
}

// formatStage requires every message, once normalized, to follow the
// category layout.
func (s *Sequential) formatStage(category whatsapp.Category) Stage[FormattedSet] {
	return Stage[FormattedSet]{
		Name:     "format",
		Provider: s.provider,
		Options:  s.opts,
		System:   formatSystem,
		User:     formatUser,
		Check: func(out FormattedSet) error {
			var errs []error
			for i, msg := range out.Messages {
				if err := whatsapp.CheckPattern(category, whatsapp.Normalize(msg)); err != nil {
					errs = append(errs, fmt.Errorf("message %d: %w", i+1, err))
				}
			}
			return errors.Join(errs...)
		},
	}
}

func (s *Sequential) abort(stage string, err error) GenerationResult {
	abort := &PipelineAbort{Strategy: StrategySequential, Stage: stage, Err: err}
	fields := []zap.Field{zap.String("stage", stage), zap.Error(abort)}
	var serr *StageError
	if errors.As(err, &serr) && serr.Raw != "" {
		fields = append(fields, zap.String("raw", serr.Raw))
	}
	s.logger.Error("pipeline aborted", fields...)
	return ErrorResult()
}
