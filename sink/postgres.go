package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore writes records to PostgreSQL.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	s := &PostgresStore{Pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS message_feedback (
			id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			is_positive BOOLEAN NOT NULL,
			feedback_text TEXT,
			message_content TEXT NOT NULL,
			message_type TEXT,
			media_type TEXT,
			tone TEXT,
			formatting_analysis JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS message_analytics (
			id TEXT PRIMARY KEY,
			original_message TEXT,
			generated_message TEXT,
			message_type TEXT,
			media_type TEXT,
			tone_of_voice TEXT,
			was_regenerated BOOLEAN,
			formatting_analysis JSONB,
			action TEXT,
			field_name TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS message_feedback_message_id_idx ON message_feedback (message_id)`,
	}
	for _, q := range queries {
		if _, err := s.Pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveFeedback(ctx context.Context, rec FeedbackRecord) (FeedbackRecord, error) {
	rec = rec.stamp(time.Now())
	analysis, err := json.Marshal(rec.FormattingAnalysis)
	if err != nil {
		return FeedbackRecord{}, err
	}
	err = s.Pool.QueryRow(ctx,
		`INSERT INTO message_feedback
			(id, message_id, is_positive, feedback_text, message_content, message_type, media_type, tone, formatting_analysis, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9::jsonb, $10)
		 RETURNING created_at`,
		rec.ID, rec.MessageID, rec.IsPositive, rec.FeedbackText, rec.MessageContent,
		rec.Metadata.MessageType, rec.Metadata.MediaType, rec.Metadata.Tone, string(analysis), rec.CreatedAt,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return FeedbackRecord{}, fmt.Errorf("insert feedback: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) SaveAnalytics(ctx context.Context, rec AnalyticsRecord) error {
	rec = rec.stamp(time.Now())
	analysis, err := json.Marshal(rec.FormattingAnalysis)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx,
		`INSERT INTO message_analytics
			(id, original_message, generated_message, message_type, media_type, tone_of_voice, was_regenerated, formatting_analysis, action, field_name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, NULLIF($9, ''), NULLIF($10, ''), $11)`,
		rec.ID, rec.OriginalMessage, rec.GeneratedMessage, rec.MessageType, rec.MediaType, rec.ToneOfVoice,
		rec.WasRegenerated, string(analysis), rec.Action, rec.FieldName, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analytics: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.Pool.Close()
	return nil
}
