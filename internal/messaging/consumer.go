package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"tophome-storefront/internal/wishlist"
)

// EventConsumer relays wishlist events published by any storefront
// instance to a local notifier, normally the websocket hub. Events from
// other instances also go to shoppers, which resyncs the copies of those
// shoppers held here.
type EventConsumer struct {
	rmq      *RabbitMQ
	target   wishlist.Notifier
	shoppers wishlist.Notifier
	origin   string
}

func NewEventConsumer(rmq *RabbitMQ, target, shoppers wishlist.Notifier) *EventConsumer {
	c := &EventConsumer{
		rmq:      rmq,
		target:   target,
		shoppers: shoppers,
	}
	if rmq != nil {
		c.origin = rmq.Origin()
	}
	return c
}

// Start binds a private queue to the events exchange and relays deliveries
// until ctx is cancelled.
func (c *EventConsumer) Start(ctx context.Context) error {
	queue, err := c.rmq.channel.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare events queue: %w", err)
	}

	if err := c.rmq.channel.QueueBind(
		queue.Name,     // queue name
		"wishlist.#",   // routing key
		EventsExchange, // exchange
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind events queue: %w", err)
	}

	msgs, err := c.rmq.channel.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming wishlist events",
		slog.String("queue", queue.Name),
		slog.String("exchange", EventsExchange))

	go func() {
		for {
			select {
			case <-ctx.Done():
				slog.Info("stopping event consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Warn("event consumer channel closed")
					return
				}
				c.handle(ctx, msg.Body)
			}
		}
	}()

	return nil
}

func (c *EventConsumer) handle(ctx context.Context, body []byte) {
	var event WishlistEvent
	if err := json.Unmarshal(body, &event); err != nil {
		slog.Error("error unmarshaling wishlist event",
			slog.String("error", err.Error()),
			slog.Int("body_size", len(body)))
		return
	}
	if event.ShopperID == "" {
		slog.Warn("dropping wishlist event without shopper")
		return
	}

	c.target.Notify(ctx, event.Event)

	if c.shoppers != nil && event.Origin != c.origin {
		c.shoppers.Notify(ctx, event.Event)
	}
}
