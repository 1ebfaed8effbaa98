package generator

import (
	"wa_message_composer/whatsapp"
)

// MediaPresentation is how the message is delivered alongside media.
type MediaPresentation string

const (
	MediaStandard MediaPresentation = "standard"
	MediaImage    MediaPresentation = "image"
	MediaVideo    MediaPresentation = "video"
	MediaPDF      MediaPresentation = "pdf"
	MediaCarousel MediaPresentation = "carousel"
	MediaCatalog  MediaPresentation = "catalog"
)

// VoiceTone is the requested voice of the copy.
type VoiceTone string

const (
	ToneProfessional VoiceTone = "professional"
	ToneFriendly     VoiceTone = "friendly"
	ToneEmpathetic   VoiceTone = "empathetic"
	ToneCheeky       VoiceTone = "cheeky"
	ToneSincere      VoiceTone = "sincere"
	ToneUrgent       VoiceTone = "urgent"
)

// MaxSourceText is the longest accepted source text, in characters.
const MaxSourceText = 1000

// GenerationRequest is the input of one pipeline run. Strategies receive it
// by value and never modify the caller's copy.
type GenerationRequest struct {
	SourceText string            `json:"sourceText" validate:"required,max=1000"`
	Category   whatsapp.Category `json:"messageCategory" validate:"required,oneof=marketing authentication utility service"`
	Media      MediaPresentation `json:"mediaPresentation" validate:"oneof=standard image video pdf carousel catalog"`
	Tone       VoiceTone         `json:"voiceTone" validate:"oneof=professional friendly empathetic cheeky sincere urgent"`
	SeedFields [3]string         `json:"seedFields"`
}

// IntentAnalysis is produced once per run and read by every later stage.
type IntentAnalysis struct {
	CoreIntent              string   `json:"coreIntent" validate:"required"`
	Tone                    string   `json:"tone" validate:"required"`
	TargetAudience          string   `json:"targetAudience" validate:"required"`
	ContextualNuance        string   `json:"contextualNuance" validate:"required"`
	KeyElements             []string `json:"keyElements" validate:"min=1,dive,required"`
	CreativeAngles          []string `json:"creativeAngles" validate:"min=1,dive,required"`
	EmotionalHooks          []string `json:"emotionalHooks" validate:"min=1,dive,required"`
	PsychologicalPrinciples []string `json:"psychologicalPrinciples" validate:"min=1,dive,required"`
}

// CreativeVariant is the raw copy for one candidate message.
type CreativeVariant struct {
	Headline     string `json:"headline" validate:"required"`
	Body         string `json:"body" validate:"required"`
	CallToAction string `json:"callToAction" validate:"required"`
	Tone         string `json:"tone"`
}

// CreativeSet is the copy stage output.
type CreativeSet struct {
	Variants        []CreativeVariant `json:"variants" validate:"len=3,dive"`
	SuggestedEmojis []string          `json:"suggestedEmojis"`
	Highlights      []string          `json:"highlights"`
}

type ListSpec struct {
	Intro string   `json:"intro"`
	Items []string `json:"items" validate:"min=1"`
}

type EmojiPlacement struct {
	Emoji    string `json:"emoji" validate:"required"`
	Position string `json:"position" validate:"required"`
}

type SpacingDirective struct {
	Location string `json:"location" validate:"required"`
	Break    string `json:"break" validate:"oneof=single double"`
}

// FormattingPlan lists the markup the formatting stage should apply.
type FormattingPlan struct {
	Bold          []string           `json:"bold"`
	Italic        []string           `json:"italic"`
	Strikethrough []string           `json:"strikethrough"`
	Monospace     []string           `json:"monospace"`
	BulletLists   []ListSpec         `json:"bulletLists" validate:"dive"`
	NumberedLists []ListSpec         `json:"numberedLists" validate:"dive"`
	Emojis        []EmojiPlacement   `json:"emojis" validate:"dive"`
	Spacing       []SpacingDirective `json:"spacing" validate:"dive"`
}

type StructurePlan struct {
	StructuredContent string         `json:"structuredContent" validate:"required"`
	Formatting        FormattingPlan `json:"formatting"`
}

// StructureSet is the structure stage output, one plan per variant.
type StructureSet struct {
	Plans []StructurePlan `json:"plans" validate:"len=3,dive"`
}

// FormattedSet is the formatting stage output.
type FormattedSet struct {
	Messages []string `json:"messages" validate:"len=3,dive,required"`
}

// CreativeSuggestion steers one fan-out slot.
type CreativeSuggestion struct {
	Angle     string `json:"angle" validate:"required"`
	Rationale string `json:"rationale" validate:"required"`
}

// FanOutIntent is the fan-out intent stage output.
type FanOutIntent struct {
	Analysis    IntentAnalysis       `json:"analysis"`
	Suggestions []CreativeSuggestion `json:"suggestions" validate:"len=3,dive"`
}

// SlotMessage is one fan-out message call's output.
type SlotMessage struct {
	Message string `json:"message" validate:"required"`
}

// GenerationResult always carries exactly three variations.
type GenerationResult struct {
	Variations [3]string       `json:"variations"`
	Analysis   *IntentAnalysis `json:"analysis,omitempty"`
}

// ErrorResult is the uniform result of an aborted run.
func ErrorResult() GenerationResult {
	return GenerationResult{Variations: [3]string{whatsapp.Placeholder, whatsapp.Placeholder, whatsapp.Placeholder}}
}

// FallbackAnalysis is substituted whenever intent analysis fails.
func FallbackAnalysis() IntentAnalysis {
	const unavailable = "Intent analysis unavailable"
	return IntentAnalysis{
		CoreIntent:              unavailable,
		Tone:                    "Unknown (analysis failed)",
		TargetAudience:          "Unknown (analysis failed)",
		ContextualNuance:        "Analysis failed; work from the source text directly",
		KeyElements:             []string{"Error: key elements unavailable"},
		CreativeAngles:          []string{"Error: creative angles unavailable"},
		EmotionalHooks:          []string{"Error: emotional hooks unavailable"},
		PsychologicalPrinciples: []string{"Error: psychological principles unavailable"},
	}
}

// fallbackSuggestions pair with FallbackAnalysis in the fan-out strategy.
func fallbackSuggestions() []CreativeSuggestion {
	return []CreativeSuggestion{
		{Angle: "Direct and clear", Rationale: "Fallback: state the offer plainly"},
		{Angle: "Benefit focused", Rationale: "Fallback: lead with what the reader gains"},
		{Angle: "Friendly and personal", Rationale: "Fallback: speak to the reader by name"},
	}
}
