package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"tophome-storefront/internal/observability"
	"tophome-storefront/internal/wishlist"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange = "storefront.events"
	publishTimeout = 2 * time.Second
)

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	// origin tags events published by this instance
	origin string
}

// WishlistEvent is the broker payload for a settled wishlist change
type WishlistEvent struct {
	wishlist.Event
	Origin    string `json:"origin"`
	Timestamp int64  `json:"timestamp"`
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
		origin:  uuid.NewString(),
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry keeps dialing until the broker accepts or ctx ends
func NewRabbitMQWithRetry(ctx context.Context, url string) (*RabbitMQ, error) {
	backoff := 500 * time.Millisecond
	for attempt := 1; ; attempt++ {
		rmq, err := NewRabbitMQ(url)
		if err == nil {
			return rmq, nil
		}

		slog.Warn("rabbitmq not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up connecting to RabbitMQ after %d attempts: %w", attempt, err)
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		EventsExchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	); err != nil {
		return fmt.Errorf("failed to declare events exchange: %w", err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// RoutingKey is "wishlist.<op>.<outcome>", e.g. wishlist.add.committed
func RoutingKey(event wishlist.Event) string {
	return fmt.Sprintf("wishlist.%s.%s", event.Op, event.Outcome)
}

func (r *RabbitMQ) PublishWishlistEvent(ctx context.Context, event wishlist.Event) error {
	body, err := json.Marshal(WishlistEvent{Event: event, Origin: r.origin, Timestamp: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := RoutingKey(event)
	err = r.channel.PublishWithContext(
		ctx,
		EventsExchange,
		key,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		observability.EventsPublishedTotal.WithLabelValues(key, "error").Inc()
		return fmt.Errorf("failed to publish event: %w", err)
	}

	observability.EventsPublishedTotal.WithLabelValues(key, "ok").Inc()
	observability.FromContext(ctx).Debug("published wishlist event", slog.String("routing_key", key))
	return nil
}

// Notify publishes event. Broker failures are logged; the wishlist change
// itself has already settled.
func (r *RabbitMQ) Notify(ctx context.Context, event wishlist.Event) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.PublishWishlistEvent(pubCtx, event); err != nil {
		observability.FromContext(ctx).Error("failed to publish wishlist event",
			slog.String("error", err.Error()))
	}
}

// Origin identifies this instance in published events
func (r *RabbitMQ) Origin() string {
	return r.origin
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
