package paywall

import (
	"context"
	"log/slog"
)

// FailureSink receives errors that must never reach the caller, most
// notably credit redemption failures after a result has already been
// produced. Implementations must not block for long and must be safe for
// concurrent use.
type FailureSink interface {
	RecordFailure(ctx context.Context, err error)
}

// LogSink reports failures through a slog.Logger.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) RecordFailure(ctx context.Context, err error) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.ErrorContext(ctx, "meter.failure", slog.String("err", err.Error()))
}
