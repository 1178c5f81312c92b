package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultChannel is the pub/sub channel shared by publishers and subscribers.
const DefaultChannel = "user-notifications"

// RedisPublisher publishes events on a Redis channel so that every instance
// can reach streams connected to it.
type RedisPublisher struct {
	client  redis.Cmdable
	channel string
}

func NewRedisPublisher(client redis.Cmdable, channel string) *RedisPublisher {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Notify(ctx context.Context, receiverID string, ev Event) error {
	if strings.TrimSpace(receiverID) == "" {
		return errors.New("receiver id is required")
	}
	payload, err := json.Marshal(envelope{ReceiverID: receiverID, Event: ev})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Subscriber relays events from a Redis channel into a Hub.
type Subscriber struct {
	client  redis.UniversalClient
	channel string
	hub     *Hub
	logger  *slog.Logger
}

func NewSubscriber(client redis.UniversalClient, channel string, hub *Hub, logger *slog.Logger) *Subscriber {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{client: client, channel: channel, hub: hub, logger: logger}
}

// Run relays messages until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer func() { _ = pubsub.Close() }()

	// Wait for the subscription to be confirmed before reporting readiness.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.logger.Info("notification subscriber started", "channel", s.channel)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("notification channel closed")
			}
			s.handle(msg.Payload)
		}
	}
}

func (s *Subscriber) handle(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		s.logger.Warn("discarding malformed notification", "error", err)
		return
	}
	if env.ReceiverID == "" {
		s.logger.Warn("discarding notification without receiver", "type", env.Event.Type)
		return
	}
	s.hub.Deliver(env.ReceiverID, env.Event)
}
