package workers

import (
	"context"
	"log/slog"
	"match-lab/contract"
	"time"
)

// OutboxSweeper periodically re-notifies every watched room, so events whose
// notification was dropped still reach their streams.
type OutboxSweeper struct {
	log      *slog.Logger
	registry contract.IRegistry
	notifier contract.INotifier
	interval time.Duration
}

func NewOutboxSweeper(log *slog.Logger, registry contract.IRegistry, notifier contract.INotifier, interval time.Duration) *OutboxSweeper {
	return &OutboxSweeper{log: log, registry: registry, notifier: notifier, interval: interval}
}

func (w *OutboxSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping outbox sweep")
			return nil
		case <-ticker.C:
			for _, roomID := range w.registry.Rooms() {
				w.notifier.Notify(roomID)
			}
		}
	}
}
