package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"credify/globals"
	"credify/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Publisher broadcasts job lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event models.JobEvent) error
}

// Nop drops every event. Used when Redis is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, models.JobEvent) error { return nil }

// RedisPublisher publishes events to a Redis pub/sub channel.
type RedisPublisher struct {
	Conn    redis.Cmdable
	Channel string
}

func NewRedisPublisher(conn redis.Cmdable) *RedisPublisher {
	return &RedisPublisher{Conn: conn, Channel: globals.VerificationEventsChannel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event models.JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}
	if err := p.Conn.Publish(ctx, p.Channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.Channel, err)
	}
	return nil
}

// Emit publishes and logs failures. Events are best-effort.
func Emit(ctx context.Context, pub Publisher, log logrus.FieldLogger, event models.JobEvent) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, event); err != nil {
		log.WithFields(logrus.Fields{
			"pipeline":  event.Pipeline,
			"contentId": event.ContentID,
			"status":    event.Status,
		}).WithError(err).Warn("[Emit] failed to publish job event")
	}
}
