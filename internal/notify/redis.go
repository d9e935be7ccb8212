package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/24ep/studio-sub000/internal/logger"
	"github.com/24ep/studio-sub000/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// RedisPublisher lets processes without sockets (the import worker) signal
// queue changes to every API instance.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: channel,
		log:     logger.Component("notify"),
	}
}

func (p *RedisPublisher) QueueChanged(ctx context.Context) {
	data, err := json.Marshal(model.Event{Type: model.EventQueueChanged, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return
	}
	if err := p.client.Publish(context.WithoutCancel(ctx), p.channel, data).Err(); err != nil {
		p.log.Warn().Err(err).Str("channel", p.channel).Msg("Failed to publish queue event")
	}
}

// Relay copies events from the Redis channel into a local hub.
type Relay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	ready   chan struct{}
	log     zerolog.Logger
}

func NewRelay(client *redis.Client, channel string, hub *Hub) *Relay {
	return &Relay{
		client:  client,
		channel: channel,
		hub:     hub,
		ready:   make(chan struct{}),
		log:     logger.Component("notify"),
	}
}

// Ready is closed once the subscription is confirmed.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	close(r.ready)
	r.log.Info().Str("channel", r.channel).Msg("Relaying queue events")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.hub.publishRaw([]byte(msg.Payload))
		}
	}
}
