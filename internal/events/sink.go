package events

import (
	"context"
	"log/slog"
	"time"
)

// LogSink drains a buffer and writes each event to the log. It stands
// in for richer delivery channels; anything that can read the buffer
// can replace it.
type LogSink struct {
	buffer   *Buffer
	logger   *slog.Logger
	interval time.Duration
}

// NewLogSink creates a sink draining buffer every interval.
func NewLogSink(buffer *Buffer, logger *slog.Logger, interval time.Duration) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &LogSink{buffer: buffer, logger: logger, interval: interval}
}

// Run drains until ctx is cancelled, then flushes whatever is left.
func (s *LogSink) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush()
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

func (s *LogSink) flush() {
	for _, ev := range s.buffer.Drain(0) {
		attrs := []any{
			"event_id", ev.ID,
			"kind", string(ev.Kind),
			"owner_id", ev.OwnerID,
			"owner", ev.OwnerName,
		}
		for k, v := range ev.Fields {
			attrs = append(attrs, k, v)
		}
		s.logger.Info("event", attrs...)
	}
}
