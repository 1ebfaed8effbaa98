package generator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"wa_message_composer/provider"
)

// Invoker is the provider capability a stage needs; *provider.Adapter
// satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, providerID string, messages []provider.Message, opts provider.Options) (string, error)
}

// StageError is a failed stage: the provider call failed, the template
// could not be rendered, or the reply broke the output contract.
type StageError struct {
	Stage     string
	Raw       string
	Violation string
	Err       error
}

func (e *StageError) Error() string {
	if e.Violation != "" {
		return fmt.Sprintf("stage %s: %s", e.Stage, e.Violation)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Stage is one prompt + model call + structured parse unit producing T.
type Stage[T any] struct {
	Name     string
	Provider string
	Options  provider.Options
	System   string
	User     string
	// Check runs after struct-tag validation.
	Check func(T) error
}

// Run renders the templates from bindings, calls the provider and decodes
// the reply into T. It never retries.
func (s Stage[T]) Run(ctx context.Context, inv Invoker, bindings map[string]any) (T, error) {
	var zero T
	vars, err := Flatten(bindings)
	if err != nil {
		return zero, &StageError{Stage: s.Name, Err: err}
	}
	system, err := Render(s.System, vars)
	if err != nil {
		return zero, &StageError{Stage: s.Name, Violation: err.Error(), Err: err}
	}
	user, err := Render(s.User, vars)
	if err != nil {
		return zero, &StageError{Stage: s.Name, Violation: err.Error(), Err: err}
	}

	raw, err := inv.Invoke(ctx, s.Provider, []provider.Message{
		{Role: provider.RoleSystem, Content: system},
		{Role: provider.RoleUser, Content: user},
	}, s.Options)
	if err != nil {
		return zero, &StageError{Stage: s.Name, Err: err}
	}

	out, violation, err := decodeOutput(raw, s.Check)
	if err != nil {
		return zero, &StageError{Stage: s.Name, Raw: raw, Violation: violation, Err: err}
	}
	return out, nil
}

// runner applies the stage retry policy shared by both strategies.
type runner struct {
	inv     Invoker
	retries int
	logger  *zap.Logger
}

func runStage[T any](ctx context.Context, r runner, st Stage[T], bindings map[string]any) (T, error) {
	var (
		out T
		err error
	)
	for attempt := 0; attempt <= r.retries; attempt++ {
		out, err = st.Run(ctx, r.inv, bindings)
		if err == nil {
			return out, nil
		}
		r.logger.Warn("stage failed",
			zap.String("stage", st.Name),
			zap.String("provider", st.Provider),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}
	return out, err
}
