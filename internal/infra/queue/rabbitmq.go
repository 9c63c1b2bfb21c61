// Package queue mirrors chat events onto a RabbitMQ topic exchange.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/valis-ai/valis/internal/modules/model"
)

// Publisher owns one AMQP channel. amqp channels are not safe for
// concurrent publishing, hence the mutex.
type Publisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
	log      *zap.Logger
}

func NewPublisher(conn *amqp.Connection, exchange string, log *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{ch: ch, exchange: exchange, log: log}, nil
}

// RoutingKey is "chat.<channel>.<event type>"; events without a channel use "_".
func RoutingKey(evt model.Event) string {
	channel := evt.ChannelID
	if channel == "" {
		channel = "_"
	}
	return fmt.Sprintf("chat.%s.%s", channel, evt.Type)
}

func (p *Publisher) PublishJSON(ctx context.Context, key string, v any) error {
	body, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

type envelope struct {
	Handles []string    `json:"handles"`
	Event   model.Event `json:"event"`
}

// Deliver publishes evt together with the handles it was addressed to, so
// consumers on other nodes can fan it out to their own connections.
func (p *Publisher) Deliver(ctx context.Context, handles []string, evt model.Event) error {
	key := RoutingKey(evt)
	if err := p.PublishJSON(ctx, key, envelope{Handles: handles, Event: evt}); err != nil {
		p.log.Sugar().Warnw("mirror chat event", "key", key, "err", err)
		return err
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}
