package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"tophome-storefront/internal/observability"
	"tophome-storefront/internal/wishlist"
)

// BroadcastMessage represents a message for every connection of one shopper
type BroadcastMessage struct {
	ShopperID string
	Type      string
	Message   []byte
}

// Hub maintains active clients and fans wishlist updates out to them
type Hub struct {
	// Registered clients by shopper
	clients map[string]map[*Client]bool

	// Broadcast channel
	broadcast chan *BroadcastMessage

	// Register client
	register chan *Client

	// Unregister client
	unregister chan *Client

	// Shutdown signal
	done chan struct{}
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan *BroadcastMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			if h.clients[client.shopperID] == nil {
				h.clients[client.shopperID] = make(map[*Client]bool)
			}
			h.clients[client.shopperID][client] = true
			observability.WebSocketConnectionsActive.Inc()
			slog.Debug("client registered", slog.String("shopper_id", client.shopperID))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			clients, ok := h.clients[message.ShopperID]
			if !ok {
				continue
			}
			for client := range clients {
				select {
				case client.send <- message.Message:
					observability.WebSocketMessagesSent.WithLabelValues(message.Type).Inc()
				default:
					// Client's send buffer is full, drop it
					h.closeClientSend(client)
					delete(clients, client)
					observability.WebSocketConnectionsActive.Dec()
				}
			}
			if len(clients) == 0 {
				delete(h.clients, message.ShopperID)
			}
		}
	}
}

// unregisterClient safely removes a client from the hub
func (h *Hub) unregisterClient(client *Client) {
	clients, ok := h.clients[client.shopperID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}

	delete(clients, client)
	h.closeClientSend(client)
	observability.WebSocketConnectionsActive.Dec()
	slog.Debug("client unregistered", slog.String("shopper_id", client.shopperID))

	if len(clients) == 0 {
		delete(h.clients, client.shopperID)
	}
}

// closeClientSend safely closes a client's send channel
func (h *Hub) closeClientSend(client *Client) {
	client.sendOnce.Do(func() {
		close(client.send)
	})
}

// shutdown performs graceful cleanup of all connections
func (h *Hub) shutdown() {
	close(h.done)

	for shopperID, clients := range h.clients {
		for client := range clients {
			h.closeClientSend(client)
			observability.WebSocketConnectionsActive.Dec()
		}
		delete(h.clients, shopperID)
	}

	slog.Info("hub shutdown complete")
}

// Broadcast queues message for every connection of shopperID. It returns
// without sending once the hub has shut down.
func (h *Hub) Broadcast(shopperID, msgType string, message []byte) {
	select {
	case h.broadcast <- &BroadcastMessage{ShopperID: shopperID, Type: msgType, Message: message}:
	case <-h.done:
	}
}

// Notify pushes a settled wishlist change to the shopper's open pages
func (h *Hub) Notify(ctx context.Context, event wishlist.Event) {
	msg := ServerMessage{
		Type:      TypeWishlistUpdated,
		Op:        string(event.Op),
		ProductID: event.ProductID.String(),
		Outcome:   string(event.Outcome),
		Items:     event.Items,
	}
	for _, id := range event.Pending {
		msg.Pending = append(msg.Pending, id.String())
	}
	data, err := json.Marshal(msg)
	if err != nil {
		observability.FromContext(ctx).Error("failed to marshal wishlist update",
			slog.String("error", err.Error()))
		return
	}
	h.Broadcast(event.ShopperID, TypeWishlistUpdated, data)
}

// Register registers a client with the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		h.closeClientSend(client)
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
