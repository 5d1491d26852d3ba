package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/flicky/storefront-api/internal/model"
)

const idempotencyTTL = 24 * time.Hour

// IdempotencyStore remembers which events were already handled.
type IdempotencyStore interface {
	// Claim marks key as taken and reports whether this caller got it.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type HistoryWriter interface {
	AddStatusChange(ctx context.Context, change *model.OrderStatusChange) error
}

type RedisIdempotency struct {
	client *redis.Client
}

func NewRedisIdempotency(client *redis.Client) *RedisIdempotency {
	return &RedisIdempotency{client: client}
}

func (r *RedisIdempotency) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, "1", ttl).Result()
}

func (r *RedisIdempotency) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// OrderWorker consumes order events and records each status change in the
// order history.
type OrderWorker struct {
	channel *amqp.Channel
	history HistoryWriter
	seen    IdempotencyStore
	log     *zap.Logger
}

func NewOrderWorker(ch *amqp.Channel, history HistoryWriter, seen IdempotencyStore, log *zap.Logger) *OrderWorker {
	return &OrderWorker{channel: ch, history: history, seen: seen, log: log}
}

// Run consumes until ctx is cancelled or the channel closes.
func (w *OrderWorker) Run(ctx context.Context) error {
	if err := w.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	msgs, err := w.channel.ConsumeWithContext(ctx, OrderEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	w.log.Info("order worker started", zap.String("queue", OrderEventsQueue))
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("delivery channel closed")
			}
			w.processMessage(ctx, msg)
		case <-ctx.Done():
			w.log.Info("order worker stopped")
			return nil
		}
	}
}

func (w *OrderWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var event model.OrderEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		w.log.Error("unmarshal order event", zap.Error(err))
		_ = msg.Nack(false, false) // → DLQ
		return
	}
	if event.EventID == uuid.Nil || event.OrderID == uuid.Nil || !event.To.IsValid() {
		w.log.Error("malformed order event", zap.ByteString("body", msg.Body))
		_ = msg.Nack(false, false)
		return
	}

	log := w.log.With(
		zap.Stringer("event_id", event.EventID),
		zap.String("type", event.Type),
		zap.Stringer("order_id", event.OrderID),
	)

	key := "order_event:" + event.EventID.String()
	claimed, err := w.seen.Claim(ctx, key, idempotencyTTL)
	if err != nil {
		log.Error("claim idempotency key", zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}
	if !claimed {
		log.Info("order event already processed, skipping")
		_ = msg.Ack(false)
		return
	}

	change := &model.OrderStatusChange{
		OrderID:   event.OrderID,
		EventID:   event.EventID,
		From:      event.From,
		To:        event.To,
		ChangedAt: event.OccurredAt,
	}
	if err := w.history.AddStatusChange(ctx, change); err != nil {
		log.Error("record status change", zap.Error(err))
		if err := w.seen.Release(ctx, key); err != nil {
			log.Error("release idempotency key", zap.Error(err))
		}
		_ = msg.Nack(false, false) // → DLQ
		return
	}

	_ = msg.Ack(false)
	log.Info("order event processed", zap.String("to", event.To.String()))
}
