package workers

import (
	"context"
	"log/slog"
	"match-lab/contract"
	"match-lab/observability"
	"time"

	"github.com/robfig/cron/v3"
)

// RoomJanitor abandons rooms left idle longer than idleTimeout, on a cron schedule.
type RoomJanitor struct {
	log         *slog.Logger
	expirer     contract.IRoomExpirer
	schedule    string
	idleTimeout time.Duration
	now         func() time.Time
}

func NewRoomJanitor(log *slog.Logger, expirer contract.IRoomExpirer, schedule string, idleTimeout time.Duration) *RoomJanitor {
	return &RoomJanitor{
		log:         log,
		expirer:     expirer,
		schedule:    schedule,
		idleTimeout: idleTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (w *RoomJanitor) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(w.schedule, func() { w.Sweep(ctx) }); err != nil {
		return err
	}
	c.Start()
	w.log.Info("Room janitor scheduled", "schedule", w.schedule, "idle_timeout", w.idleTimeout)

	<-ctx.Done()
	// wait for a running sweep
	<-c.Stop().Done()
	return nil
}

// Sweep runs one expiry pass.
func (w *RoomJanitor) Sweep(ctx context.Context) {
	n, err := w.expirer.ExpireIdleRooms(ctx, w.now().Add(-w.idleTimeout))
	if err != nil {
		w.log.Error("Idle room sweep failed", "error", err)
		return
	}
	if n > 0 {
		observability.ExpiredRooms.Add(float64(n))
		w.log.Info("Idle rooms expired", "count", n)
	}
}
