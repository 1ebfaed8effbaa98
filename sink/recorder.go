package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const defaultWriteTimeout = 10 * time.Second

var validate = validator.New()

// Recorder is what the rest of the service talks to. Feedback is written
// synchronously; analytics are fire-and-forget.
type Recorder struct {
	store   Store
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewRecorder(store Store, logger *zap.Logger, timeout time.Duration) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Recorder{store: store, logger: logger, timeout: timeout}
}

// Feedback validates and stores rec, returning the stored record.
func (r *Recorder) Feedback(ctx context.Context, rec FeedbackRecord) (FeedbackRecord, error) {
	if err := validate.Struct(rec); err != nil {
		return FeedbackRecord{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	stored, err := r.store.SaveFeedback(ctx, rec)
	if err != nil {
		r.logger.Error("feedback not saved", zap.String("message_id", rec.MessageID), zap.Error(err))
		return FeedbackRecord{}, err
	}
	r.logger.Info("feedback saved",
		zap.String("id", stored.ID),
		zap.String("message_id", stored.MessageID),
		zap.Bool("positive", stored.IsPositive),
	)
	return stored, nil
}

// Analytics hands rec to the store in the background. Failures are logged
// and dropped, as are records arriving after Close.
func (r *Recorder) Analytics(rec AnalyticsRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.Warn("analytics dropped after close",
			zap.String("action", rec.Action),
			zap.String("field", rec.FieldName),
		)
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.store.SaveAnalytics(ctx, rec); err != nil {
			r.logger.Warn("analytics not saved",
				zap.String("action", rec.Action),
				zap.String("field", rec.FieldName),
				zap.Error(err),
			)
		}
	}()
}

// Close waits for pending analytics writes, then closes the store.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
	return r.store.Close()
}
