package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ai-mistake-tracker/pkg/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends domain events to the topic exchange.
type Publisher struct {
	ch  publishChannel
	log *zap.Logger
}

func NewPublisher(ch *amqp.Channel, log *zap.Logger) *Publisher {
	return &Publisher{ch: ch, log: log}
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.ch.PublishWithContext(ctx,
		Exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Emit publishes e under its type. Failures are logged and dropped; the write
// that produced the event has already been committed.
func (p *Publisher) Emit(ctx context.Context, e models.Event) {
	if err := p.Publish(context.WithoutCancel(ctx), string(e.Type), e); err != nil {
		p.log.Warn("event publish failed",
			zap.String("type", string(e.Type)),
			zap.String("report_id", e.ReportID),
			zap.Error(err),
		)
	}
}
