package generator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"wa_message_composer/whatsapp"
)

// Regenerator rebuilds a single variation. Calls share no state, so
// regenerating one slot never involves the other two.
type Regenerator struct {
	fan    *FanOut
	logger *zap.Logger
}

func NewRegenerator(fan *FanOut, logger *zap.Logger) *Regenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Regenerator{fan: fan, logger: logger}
}

// Regenerate returns a fresh, normalized text for slot (1..3), seeded only
// with originalText. Errors are always *ValidationError.
func (r *Regenerator) Regenerate(ctx context.Context, originalText string, category whatsapp.Category, media MediaPresentation, tone VoiceTone, slot int) (string, error) {
	if slot < 1 || slot > 3 {
		return "", &ValidationError{Field: "slot", Reason: fmt.Sprintf("got %d", slot), Err: ErrInvalidSlot}
	}
	req := GenerationRequest{
		SourceText: originalText,
		Category:   category,
		Media:      media,
		Tone:       tone,
	}
	req.SeedFields[slot-1] = originalText

	req, err := Prepare(req)
	if err != nil {
		return "", err
	}

	text := whatsapp.Normalize(r.fan.GenerateSlot(ctx, req, slot-1))
	if text == "" {
		text = whatsapp.Placeholder
	}
	r.logger.Info("slot regenerated",
		zap.Int("slot", slot),
		zap.String("category", string(category)),
		zap.Bool("placeholder", text == whatsapp.Placeholder),
	)
	return text, nil
}
