package events

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
)

const DefaultChannel = "butchery:changes"

// RedisBroker publishes through redis pub/sub so every API instance sees
// every change. Run relays the channel into the local subscribers.
type RedisBroker struct {
	client  *redis.Client
	channel string
	local   *LocalBroker
	log     zerolog.Logger
}

func NewRedisBroker(client *redis.Client, channel string, logger zerolog.Logger) *RedisBroker {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroker{
		client:  client,
		channel: channel,
		local:   NewLocalBroker(0),
		log:     logger.With().Str("component", "events").Logger(),
	}
}

func (b *RedisBroker) Publish(ctx context.Context, event domain.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBroker) Subscribe() (<-chan domain.ChangeEvent, func()) {
	return b.local.Subscribe()
}

// Run blocks until ctx is done.
func (b *RedisBroker) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var event domain.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.log.Warn().Err(err).Msg("dropping malformed change event")
				continue
			}
			_ = b.local.Publish(ctx, event)
		}
	}
}
