package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"wa_message_composer/generator"
	"wa_message_composer/preview"
	"wa_message_composer/sink"
	"wa_message_composer/whatsapp"
)

const maxBodyBytes = 64 << 10

// Generator produces the three variations for a request.
type Generator interface {
	GenerateWith(ctx context.Context, strategy string, req generator.GenerationRequest) (generator.GenerationResult, error)
}

// Regenerator rebuilds one slot.
type Regenerator interface {
	Regenerate(ctx context.Context, originalText string, category whatsapp.Category, media generator.MediaPresentation, tone generator.VoiceTone, slot int) (string, error)
}

// Recorder persists feedback and analytics.
type Recorder interface {
	Feedback(ctx context.Context, rec sink.FeedbackRecord) (sink.FeedbackRecord, error)
	Analytics(rec sink.AnalyticsRecord)
}

type Server struct {
	gen     Generator
	regen   Regenerator
	rec     Recorder
	timeout time.Duration
	logger  *zap.Logger
}

type Options struct {
	// RequestTimeout bounds a whole generation run, provider calls included.
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

func New(gen Generator, regen Regenerator, rec Recorder, opts Options) (*Server, error) {
	if gen == nil || regen == nil || rec == nil {
		return nil, errors.New("generator, regenerator and recorder are required")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 90 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{gen: gen, regen: regen, rec: rec, timeout: opts.RequestTimeout, logger: opts.Logger}, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)
		r.Post("/regenerate", s.handleRegenerate)
		r.Post("/feedback", s.handleFeedback)
		r.Post("/analytics", s.handleAnalytics)
		r.Post("/normalize", s.handleNormalize)
		r.Post("/preview", s.handlePreview)
	})
	return r
}

// --- Handlers ---

type generateReq struct {
	SourceText        string   `json:"sourceText"`
	MessageCategory   string   `json:"messageCategory"`
	MediaPresentation string   `json:"mediaPresentation"`
	VoiceTone         string   `json:"voiceTone"`
	SeedFields        []string `json:"seedFields"`
	Strategy          string   `json:"strategy"`
}

type regenerateReq struct {
	OriginalText      string `json:"originalText"`
	MessageCategory   string `json:"messageCategory"`
	MediaPresentation string `json:"mediaPresentation"`
	VoiceTone         string `json:"voiceTone"`
	Slot              int    `json:"slot"`
}

type regenerateResp struct {
	Slot      int    `json:"slot"`
	Variation string `json:"variation"`
}

type feedbackReq struct {
	MessageID       string        `json:"message_id"`
	IsPositive      bool          `json:"is_positive"`
	FeedbackText    string        `json:"feedback_text"`
	MessageContent  string        `json:"message_content"`
	MessageMetadata sink.Metadata `json:"message_metadata"`
}

type textReq struct {
	Text string `json:"text"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateReq
	if !decode(w, r, &req) {
		return
	}
	if len(req.SeedFields) > 3 {
		writeError(w, http.StatusBadRequest, "seedFields", "at most 3 seed fields")
		return
	}
	greq := generator.GenerationRequest{
		SourceText: req.SourceText,
		Category:   whatsapp.Category(req.MessageCategory),
		Media:      generator.MediaPresentation(req.MediaPresentation),
		Tone:       generator.VoiceTone(req.VoiceTone),
	}
	copy(greq.SeedFields[:], req.SeedFields)

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	res, err := s.gen.GenerateWith(ctx, req.Strategy, greq)
	if err != nil {
		s.writeGenerationError(w, err)
		return
	}

	meta := metadataFor(greq)
	for i, v := range res.Variations {
		s.rec.Analytics(sink.NewAnalyticsRecord(greq.SourceText, v, meta, "generate", fieldName(i+1), false))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req regenerateReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	category := whatsapp.Category(req.MessageCategory)
	media := generator.MediaPresentation(req.MediaPresentation)
	tone := generator.VoiceTone(req.VoiceTone)
	text, err := s.regen.Regenerate(ctx, req.OriginalText, category, media, tone, req.Slot)
	if err != nil {
		s.writeGenerationError(w, err)
		return
	}

	meta := metadataFor(generator.GenerationRequest{Category: category, Media: media, Tone: tone})
	s.rec.Analytics(sink.NewAnalyticsRecord(req.OriginalText, text, meta, "regenerate", fieldName(req.Slot), true))
	writeJSON(w, http.StatusOK, regenerateResp{Slot: req.Slot, Variation: text})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackReq
	if !decode(w, r, &req) {
		return
	}
	rec := sink.NewFeedbackRecord(req.MessageID, req.IsPositive, req.FeedbackText, req.MessageContent, req.MessageMetadata)
	stored, err := s.rec.Feedback(r.Context(), rec)
	switch {
	case errors.Is(err, sink.ErrInvalidRecord):
		writeError(w, http.StatusBadRequest, "", err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, "", "feedback could not be stored")
	default:
		writeJSON(w, http.StatusCreated, stored)
	}
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	var rec sink.AnalyticsRecord
	if !decode(w, r, &rec) {
		return
	}
	if rec.FormattingAnalysis == nil && rec.GeneratedMessage != "" {
		rec.FormattingAnalysis = whatsapp.Analyze(rec.GeneratedMessage)
	}
	s.rec.Analytics(rec)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req textReq
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, textReq{Text: whatsapp.Normalize(req.Text)})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req textReq
	if !decode(w, r, &req) {
		return
	}
	html, err := preview.Render(req.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"html": html})
}

// --- Helpers ---

func (s *Server) writeGenerationError(w http.ResponseWriter, err error) {
	var verr *generator.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Field, verr.Reason)
		return
	}
	s.logger.Error("generation failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "", "generation failed")
}

func metadataFor(req generator.GenerationRequest) sink.Metadata {
	m := sink.Metadata{
		MessageType: string(req.Category),
		MediaType:   string(req.Media),
		Tone:        string(req.Tone),
	}
	if m.MediaType == "" {
		m.MediaType = string(generator.MediaStandard)
	}
	if m.Tone == "" {
		m.Tone = string(generator.ToneProfessional)
	}
	return m
}

func fieldName(slot int) string {
	return fmt.Sprintf("message%d", slot)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

type errorResp struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, field, msg string) {
	writeJSON(w, status, errorResp{Error: msg, Field: field})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
