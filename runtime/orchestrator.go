// Package runtime moves committed room events to the connections watching them.
// It orchestrates the workers without containing business logic or domain rules.
package runtime

import (
	"context"
	"log/slog"
	"match-lab/contract"
	"match-lab/domain"
	"match-lab/observability"
	"match-lab/runtime/workers"
	"sync"
	"time"
)

const notificationQueue = "notifications"

type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	supervisor     contract.ISupervisor
	registry       contract.IRegistry
	store          contract.Store
	permanentSinks []contract.EventSink
	extraWorkers   []contract.Worker
	notifications  chan domain.RoomID
	sinkTimeout    time.Duration
	sweepInterval  time.Duration
	metricInterval time.Duration
}

var _ contract.INotifier = (*Orchestrator)(nil)

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, registry contract.IRegistry,
	store contract.Store, bufferSize int, sinkTimeout, sweepInterval, metricInterval time.Duration) *Orchestrator {
	return &Orchestrator{
		log:            log,
		supervisor:     supervisor,
		registry:       registry,
		store:          store,
		notifications:  make(chan domain.RoomID, bufferSize),
		sinkTimeout:    sinkTimeout,
		sweepInterval:  sweepInterval,
		metricInterval: metricInterval,
	}
}

// Add registers sinks receiving the events of every room.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// AddWorkers registers extra workers supervised alongside the pipeline.
func (o *Orchestrator) AddWorkers(ws ...contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extraWorkers = append(o.extraWorkers, ws...)
}

// Notify never blocks the caller. A dropped notification is recovered by
// the next one for the same room or by the outbox sweep.
func (o *Orchestrator) Notify(roomID domain.RoomID) {
	select {
	case o.notifications <- roomID:
	default:
		observability.NotificationsDropped.Inc()
		o.log.Warn("Notification queue full, dropping", "room_id", roomID)
	}
}

func (o *Orchestrator) RegisterConnection(connectionID string, roomID domain.RoomID, sink contract.EventSink) {
	o.registry.Subscribe(connectionID, roomID, sink)
	observability.ActiveStreams.Inc()
}

func (o *Orchestrator) UnregisterConnection(connectionID string, roomID domain.RoomID) {
	o.registry.Unsubscribe(connectionID, roomID)
	observability.ActiveStreams.Dec()
}

// Start wires the fan-out pipeline to the supervisor and blocks until the
// supervised workers have stopped.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	fanout := workers.NewEventFanout(o.log, o.store, o.registry, o.permanentSinks, o.notifications, o.sinkTimeout)
	o.supervisor.Add(
		fanout,
		workers.NewOutboxSweeper(o.log, o.registry, o, o.sweepInterval),
		workers.NewChannelCapacityWorker(o.log, []workers.NamedChannel{
			{Name: notificationQueue, Channel: o.notifications},
		}, o.metricInterval),
		workers.NewHealthMonitoringWorker(o.log, o.metricInterval),
	)
	o.supervisor.Add(o.extraWorkers...)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
	return nil
}

// Stop initiates a graceful shutdown of the supervised workers.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
