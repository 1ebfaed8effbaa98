// Package sink persists user feedback and generation analytics. The
// composer only hands records over; storage details stay behind Store.
package sink

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"wa_message_composer/whatsapp"
)

// Store is implemented by every persistence backend.
type Store interface {
	SaveFeedback(ctx context.Context, rec FeedbackRecord) (FeedbackRecord, error)
	SaveAnalytics(ctx context.Context, rec AnalyticsRecord) error
	Close() error
}

var ErrInvalidRecord = errors.New("invalid record")

// Metadata describes the message a record refers to.
type Metadata struct {
	MessageType string `json:"message_type" validate:"required"`
	MediaType   string `json:"media_type"`
	Tone        string `json:"tone"`
}

// FeedbackRecord is one like/dislike on a generated message.
type FeedbackRecord struct {
	ID                 string                `json:"id"`
	MessageID          string                `json:"message_id"`
	IsPositive         bool                  `json:"is_positive"`
	FeedbackText       string                `json:"feedback_text,omitempty"`
	MessageContent     string                `json:"message_content" validate:"required"`
	Metadata           Metadata              `json:"message_metadata"`
	FormattingAnalysis []whatsapp.Occurrence `json:"formatting_analysis"`
	CreatedAt          time.Time             `json:"created_at"`
}

// AnalyticsRecord is one generation or regeneration event.
type AnalyticsRecord struct {
	ID                 string                `json:"id,omitempty"`
	OriginalMessage    string                `json:"originalMessage"`
	GeneratedMessage   string                `json:"generatedMessage"`
	MessageType        string                `json:"messageType"`
	MediaType          string                `json:"mediaType"`
	ToneOfVoice        string                `json:"toneOfVoice"`
	WasRegenerated     *bool                 `json:"wasRegenerated,omitempty"`
	FormattingAnalysis []whatsapp.Occurrence `json:"formattingAnalysis,omitempty"`
	Action             string                `json:"action,omitempty"`
	FieldName          string                `json:"fieldName,omitempty"`
	CreatedAt          time.Time             `json:"createdAt"`
}

// NewFeedbackRecord fills in a message id when none is given and computes
// the formatting analysis of content.
func NewFeedbackRecord(messageID string, positive bool, text, content string, meta Metadata) FeedbackRecord {
	if messageID == "" {
		messageID = uuid.NewString()
	}
	return FeedbackRecord{
		MessageID:          messageID,
		IsPositive:         positive,
		FeedbackText:       text,
		MessageContent:     content,
		Metadata:           meta,
		FormattingAnalysis: whatsapp.Analyze(content),
	}
}

// NewAnalyticsRecord describes one generated variation.
func NewAnalyticsRecord(original, generated string, meta Metadata, action, field string, regenerated bool) AnalyticsRecord {
	return AnalyticsRecord{
		OriginalMessage:    original,
		GeneratedMessage:   generated,
		MessageType:        meta.MessageType,
		MediaType:          meta.MediaType,
		ToneOfVoice:        meta.Tone,
		WasRegenerated:     &regenerated,
		FormattingAnalysis: whatsapp.Analyze(generated),
		Action:             action,
		FieldName:          field,
	}
}

// stamp assigns the store-side fields.
func (r FeedbackRecord) stamp(now time.Time) FeedbackRecord {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.MessageID == "" {
		r.MessageID = r.ID
	}
	if r.FormattingAnalysis == nil {
		r.FormattingAnalysis = whatsapp.Analyze(r.MessageContent)
	}
	r.CreatedAt = now.UTC()
	return r
}

func (r AnalyticsRecord) stamp(now time.Time) AnalyticsRecord {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now.UTC()
	}
	return r
}
