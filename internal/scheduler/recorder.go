package scheduler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/villagebot/api/schemas"
	"github.com/xkilldash9x/villagebot/internal/observability"
)

// LogRecorder writes activity to a zap logger.
type LogRecorder struct {
	logger *zap.Logger
}

// NewLogRecorder creates a LogRecorder.
func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	return &LogRecorder{logger: logger.Named("activity")}
}

// Record logs entry at info level, or warn when it failed.
func (r *LogRecorder) Record(_ context.Context, entry schemas.ActivityEntry) error {
	fields := []zap.Field{
		observability.Account(entry.Account),
		zap.String("action", entry.Action),
		zap.Bool("success", entry.Success),
		zap.Time("at", entry.Timestamp),
	}
	if code, ok := entry.Details["code"].(string); ok && code != "" {
		fields = append(fields, zap.String("code", code))
	}
	if entry.Success {
		r.logger.Info(entry.Message, fields...)
	} else {
		r.logger.Warn(entry.Message, fields...)
	}
	return nil
}

// MultiRecorder fans an entry out to several recorders.
type MultiRecorder []ActivityRecorder

// Record calls every recorder and joins their errors.
func (m MultiRecorder) Record(ctx context.Context, entry schemas.ActivityEntry) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
