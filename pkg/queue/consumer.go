package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"ai-mistake-tracker/pkg/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one event. Returning an error requeues the delivery
// once; a second failure drops it.
type Handler func(ctx context.Context, e models.Event) error

// Consume binds a durable queue to the given routing keys and feeds decoded
// events to h until ctx is cancelled or the channel closes.
func Consume(ctx context.Context, ch *amqp.Channel, queueName string, keys []string, log *zap.Logger, h Handler) error {
	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	for _, key := range keys {
		if err := ch.QueueBind(q.Name, key, Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	log.Info("consuming events", zap.String("queue", q.Name), zap.Strings("keys", keys))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", q.Name)
			}
			dispatch(ctx, d, log, h)
		}
	}
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func dispatch(ctx context.Context, d amqp.Delivery, log *zap.Logger, h Handler) {
	handle(ctx, d.Body, d.RoutingKey, d.Redelivered, &d, log, h)
}

func handle(ctx context.Context, body []byte, key string, redelivered bool, ack acknowledger, log *zap.Logger, h Handler) {
	var e models.Event
	if err := json.Unmarshal(body, &e); err != nil {
		log.Warn("dropping undecodable event", zap.String("routing_key", key), zap.Error(err))
		_ = ack.Nack(false, false)
		return
	}
	if e.Type == "" {
		e.Type = models.EventType(key)
	}
	if err := h(ctx, e); err != nil {
		log.Warn("event handler failed",
			zap.String("type", string(e.Type)),
			zap.Bool("redelivered", redelivered),
			zap.Error(err),
		)
		_ = ack.Nack(false, !redelivered)
		return
	}
	_ = ack.Ack(false)
}
