// Package pubsub relays room events between server instances through Redis.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"match-lab/contract"
	"match-lab/domain"
	"match-lab/domain/event"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "matchlab:room:"

var ErrSubscriptionClosed = fmt.Errorf("redis subscription closed")

type message struct {
	Origin string         `json:"origin"`
	Event  event.Envelope `json:"event"`
}

func channel(roomID domain.RoomID) string {
	return channelPrefix + string(roomID)
}

// Publisher is a permanent sink: every event delivered locally is published
// on the room's channel, tagged with the instance that committed it.
type Publisher struct {
	rdb    *redis.Client
	origin string
}

var _ contract.EventSink = (*Publisher)(nil)

func NewPublisher(rdb *redis.Client, origin string) *Publisher {
	return &Publisher{rdb: rdb, origin: origin}
}

func (p *Publisher) Consume(ctx context.Context, e event.DomainEvent) error {
	payload, err := json.Marshal(message{Origin: p.origin, Event: event.Wrap(e)})
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, channel(e.RoomID()), payload).Err()
}

// Bridge wakes the local fan-out when another instance commits an event for
// a room watched here. The event itself is read back from the shared outbox,
// so local connections keep getting the room's events in sequence order.
// Its own messages are skipped, the local fan-out already delivered them.
type Bridge struct {
	log        *slog.Logger
	rdb        *redis.Client
	origin     string
	registry   contract.IRegistry
	notifier   contract.INotifier
	once       sync.Once
	subscribed chan struct{}
}

func NewBridge(log *slog.Logger, rdb *redis.Client, origin string, registry contract.IRegistry, notifier contract.INotifier) *Bridge {
	return &Bridge{
		log:        log,
		rdb:        rdb,
		origin:     origin,
		registry:   registry,
		notifier:   notifier,
		subscribed: make(chan struct{}),
	}
}

// Subscribed is closed once the first subscription is confirmed by Redis.
func (b *Bridge) Subscribed() <-chan struct{} {
	return b.subscribed
}

func (b *Bridge) Run(ctx context.Context) error {
	sub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	// wait for the subscription confirmation
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	b.once.Do(func() { close(b.subscribed) })
	b.log.Info("Subscribed to room events", "pattern", channelPrefix+"*")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return ErrSubscriptionClosed
			}
			b.handle(msg)
		}
	}
}

func (b *Bridge) handle(msg *redis.Message) {
	var m message
	if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
		b.log.Warn("Failed to parse room event", "channel", msg.Channel, "error", err)
		return
	}
	if m.Origin == b.origin {
		return
	}
	if strings.TrimPrefix(msg.Channel, channelPrefix) != string(m.Event.Room) {
		b.log.Warn("Room event on the wrong channel", "channel", msg.Channel, "room_id", m.Event.Room)
		return
	}
	if _, err := m.Event.Unwrap(); err != nil {
		b.log.Warn("Unreadable room event", "room_id", m.Event.Room, "error", err)
		return
	}
	if len(b.registry.GetSinksForRoom(m.Event.Room)) == 0 {
		return
	}
	b.log.Debug("Remote room event", "room_id", m.Event.Room, "seq", m.Event.Seq, "origin", m.Origin)
	b.notifier.Notify(m.Event.Room)
}
