package sink

import (
	"context"
	"fmt"
	"log/slog"
	"match-lab/domain/event"
)

// LogSink writes every delivered room event to the application log.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) LogSink {
	return LogSink{log: log}
}

func (l LogSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.RoomStatusChanged:
		l.log.Info("Room status changed", "room_id", evt.Room, "seq", evt.Seq, "status", evt.Status)
	case event.MatchCreated:
		l.log.Info("Room matched an item", "room_id", evt.Room, "seq", evt.Seq, "item_id", evt.ItemID)
	default:
		l.log.Debug(fmt.Sprintf("Not implemented event : %v", evt))
	}
	return nil
}
