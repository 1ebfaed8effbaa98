package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps every record in a single JSON document on disk.
type FileStore struct {
	path string
	mu   sync.Mutex
	data fileData
}

type fileData struct {
	Feedback  []FeedbackRecord  `json:"feedback"`
	Analytics []AnalyticsRecord `json:"analytics"`
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &FileStore{path: path}
	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	case len(raw) > 0:
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *FileStore) SaveFeedback(_ context.Context, rec FeedbackRecord) (FeedbackRecord, error) {
	rec = rec.stamp(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Feedback = append(s.data.Feedback, rec)
	if err := s.flush(); err != nil {
		s.data.Feedback = s.data.Feedback[:len(s.data.Feedback)-1]
		return FeedbackRecord{}, err
	}
	return rec, nil
}

func (s *FileStore) SaveAnalytics(_ context.Context, rec AnalyticsRecord) error {
	rec = rec.stamp(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Analytics = append(s.data.Analytics, rec)
	if err := s.flush(); err != nil {
		s.data.Analytics = s.data.Analytics[:len(s.data.Analytics)-1]
		return err
	}
	return nil
}

// Feedback returns a copy of the stored feedback.
func (s *FileStore) Feedback() []FeedbackRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FeedbackRecord(nil), s.data.Feedback...)
}

// Analytics returns a copy of the stored analytics.
func (s *FileStore) Analytics() []AnalyticsRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AnalyticsRecord(nil), s.data.Analytics...)
}

func (s *FileStore) Close() error { return nil }

// flush writes to a temp file and renames it over the old one.
func (s *FileStore) flush() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, s.path)
}
