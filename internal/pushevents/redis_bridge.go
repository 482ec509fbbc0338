package pushevents

import (
	"context"
	"encoding/json"

	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannel = "paylens.invoice.events"

// Publisher delivers events to every subscriber, local or remote.
type Publisher interface {
	Publish(event Event)
}

// localPublisher publishes to the in-process hub only.
type localPublisher struct {
	hub *Hub
}

func (p *localPublisher) Publish(event Event) {
	p.hub.Publish(event)
}

// RedisBridge mirrors hub events across instances through redis pub/sub.
// Events published locally are tagged with this instance's origin so the
// bridge never re-applies its own traffic.
type RedisBridge struct {
	hub      *Hub
	client   *redis.Client
	origin   string
	log      *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	shutdown bool
}

// NewPublisher returns a redis-bridged publisher when a client is
// configured, otherwise the in-process hub alone.
func NewPublisher(hub *Hub, client *redis.Client, log *zap.Logger) Publisher {
	if client == nil {
		return &localPublisher{hub: hub}
	}
	return NewRedisBridge(hub, client, log)
}

func NewRedisBridge(hub *Hub, client *redis.Client, log *zap.Logger) *RedisBridge {
	return &RedisBridge{
		hub:    hub,
		client: client,
		origin: ulid.Make().String(),
		log:    log.Named("pushevents.bridge"),
		done:   make(chan struct{}),
	}
}

// Publish delivers locally and broadcasts to the redis channel.
func (b *RedisBridge) Publish(event Event) {
	event.Origin = b.origin
	b.hub.Publish(event)

	data, err := json.Marshal(event)
	if err != nil {
		b.log.Error("marshal event", zap.Error(err))
		return
	}
	if err := b.client.Publish(context.Background(), redisChannel, data).Err(); err != nil {
		// Remote fanout is best-effort; local subscribers already got the event.
		b.log.Warn("redis publish failed", zap.Error(err))
	}
}

// Start consumes the redis channel and republishes foreign events into the
// local hub until the context is cancelled.
func (b *RedisBridge) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	sub := b.client.Subscribe(ctx, redisChannel)

	go func() {
		defer close(b.done)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.log.Warn("drop malformed bridge event", zap.Error(err))
					continue
				}
				if event.Origin == b.origin {
					continue
				}
				b.hub.Publish(event)
			}
		}
	}()
}

// Stop cancels the consumer and waits for it to drain.
func (b *RedisBridge) Stop() {
	if b.shutdown {
		return
	}
	b.shutdown = true
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
}
