package connectivity

import (
	"context"
	"log/slog"
)

// Setter is the offline queue's connectivity entry point.
type Setter interface {
	SetOnline(ctx context.Context, online bool) error
}

// Watch feeds every state from probe into s.SetOnline until ctx is done.
// Replay failures are logged; the queue keeps the failed actions for the next
// transition.
//
// Watch blocks. Run it in a goroutine:
//
//	go connectivity.Watch(ctx, probe, queue, logger)
func Watch(ctx context.Context, probe Probe, s Setter, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	return probe.Run(ctx, func(ctx context.Context, online bool) {
		if err := s.SetOnline(ctx, online); err != nil {
			logger.Warn("connectivity transition incomplete", "online", online, "error", err)
		}
	})
}
