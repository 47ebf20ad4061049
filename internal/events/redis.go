package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces event channels in Redis.
const DefaultChannelPrefix = "fieldforce:events:"

// RedisBus publishes events over Redis pub/sub and dispatches received events to local
// subscribers asynchronously. Delivery is best effort: no persistence, no redelivery, no
// cross-process ordering.
type RedisBus struct {
	client   *redis.Client
	prefix   string
	reg      *registry
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// NewRedisBus constructs a Redis-backed bus. Call Listen to start receiving.
func NewRedisBus(client *redis.Client, logger *slog.Logger, recorder Recorder) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{
		client:   client,
		prefix:   DefaultChannelPrefix,
		reg:      newRegistry(logger, recorder),
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
}

// Publish sends the event to Redis. It reports whether Redis accepted the message.
func (b *RedisBus) Publish(ctx context.Context, eventType string, payload any) bool {
	ok := b.publish(ctx, eventType, payload)
	if b.recorder != nil {
		b.recorder.EventPublished(eventType, ok)
	}
	return ok
}

func (b *RedisBus) publish(ctx context.Context, eventType string, payload any) bool {
	if b == nil || b.client == nil {
		return false
	}
	evt, err := NewEvent(ctx, eventType, payload, b.now())
	if err != nil {
		b.logger.Error("event encode", slog.String("event_type", eventType), slog.Any("error", err))
		return false
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		b.logger.Error("event envelope encode", slog.String("event_type", eventType), slog.Any("error", err))
		return false
	}
	if err := b.client.Publish(ctx, b.prefix+eventType, raw).Err(); err != nil {
		b.logger.Warn("event publish", slog.String("event_type", eventType), slog.Any("error", err))
		return false
	}
	return true
}

// Subscribe registers a local handler for events received from Redis.
func (b *RedisBus) Subscribe(eventType string, handler Handler) Subscription {
	return b.reg.subscribe(eventType, handler)
}

// Unsubscribe removes a local handler.
func (b *RedisBus) Unsubscribe(eventType string, sub Subscription) bool {
	return b.reg.unsubscribe(eventType, sub)
}

// Listen subscribes to every event channel and dispatches messages until ctx is done. It returns
// once the subscription is confirmed by Redis.
func (b *RedisBus) Listen(ctx context.Context) error {
	if b == nil || b.client == nil {
		return errors.New("events: redis client not configured")
	}
	pubsub := b.client.PSubscribe(ctx, b.prefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.handleMessage(ctx, msg)
			}
		}
	}()
	return nil
}

func (b *RedisBus) handleMessage(ctx context.Context, msg *redis.Message) {
	var evt Event
	if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
		b.logger.Warn("event decode", slog.String("channel", msg.Channel), slog.Any("error", err))
		return
	}
	if evt.Type == "" {
		evt.Type = strings.TrimPrefix(msg.Channel, b.prefix)
	}
	b.reg.dispatch(ctx, evt)
}
