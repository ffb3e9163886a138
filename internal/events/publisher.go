package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/pricefeed/internal/logger"
)

// Publisher emits feed lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// RedisPublisher publishes events to a Redis stream as JSON payloads.
type RedisPublisher struct {
	client *redis.Client
	log    logger.Logger
}

// NewRedisPublisher creates a stream publisher.
func NewRedisPublisher(client *redis.Client, log logger.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log}
}

// Publish appends the event to the feed-events stream. Missing id and
// timestamp are filled in.
func (p *RedisPublisher) Publish(ctx context.Context, event *Event) error {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	result := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName,
		Values: map[string]any{
			"event": string(payload),
		},
	})
	if publishErr := result.Err(); publishErr != nil {
		p.log.Error("failed to publish event",
			logger.String("event_type", string(event.EventType)),
			logger.String("feed_id", event.FeedID),
			logger.Error(publishErr))
		return fmt.Errorf("publish to stream: %w", publishErr)
	}

	p.log.Debug("event published",
		logger.String("event_type", string(event.EventType)),
		logger.String("feed_id", event.FeedID),
		logger.String("stream_id", result.Val()))
	return nil
}

// NopPublisher discards events. Used in tests and when the events stream
// is disabled by config.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, *Event) error { return nil }
