package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tophome-storefront/internal/domain"
	"tophome-storefront/internal/observability"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	maxMessageSize = 512
)

// Message types
const (
	TypeSync             = "sync"
	TypeWishlistSnapshot = "wishlist_snapshot"
	TypeWishlistUpdated  = "wishlist_updated"
	TypeError            = "error"
)

// Snapshotter provides the shopper's current wishlist
type Snapshotter interface {
	Items() []domain.Product
}

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sendOnce  sync.Once
	shopperID string
	wishlist  Snapshotter
	writeMu   sync.Mutex
	closed    atomic.Bool
	ctx       context.Context
	ctxCancel context.CancelFunc
}

type ClientMessage struct {
	Type string `json:"type"`
}

type ServerMessage struct {
	Type      string           `json:"type"`
	Op        string           `json:"op,omitempty"`
	ProductID string           `json:"productId,omitempty"`
	Outcome   string           `json:"outcome,omitempty"`
	Items     []domain.Product `json:"items,omitempty"`
	Pending   []string         `json:"pending,omitempty"`
	Message   string           `json:"message,omitempty"`
}

func NewClient(ctx context.Context, hub *Hub, conn *websocket.Conn, shopperID string, wishlist Snapshotter) *Client {
	clientCtx, cancel := context.WithCancel(observability.WithShopperID(ctx, shopperID))

	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 64),
		shopperID: shopperID,
		wishlist:  wishlist,
		ctx:       clientCtx,
		ctxCancel: cancel,
	}
}

// ReadPump reads client requests until the connection fails. Only "sync"
// is understood; it answers with a full snapshot of the wishlist.
func (c *Client) ReadPump() {
	log := observability.FromContext(c.ctx)
	defer func() {
		c.ctxCancel()
		c.hub.Unregister(c)
		c.closeConnection()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Warn("failed to set read deadline", slog.String("error", err.Error()))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.reply(c.snapshot())

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("websocket error", slog.String("error", err.Error()))
			}
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			log.Warn("invalid message format", slog.String("error", err.Error()))
			c.reply(ServerMessage{Type: TypeError, Message: "invalid message format"})
			continue
		}

		switch clientMsg.Type {
		case TypeSync:
			c.reply(c.snapshot())
		default:
			c.reply(ServerMessage{Type: TypeError, Message: "unknown message type"})
		}
	}
}

func (c *Client) snapshot() ServerMessage {
	items := c.wishlist.Items()
	if items == nil {
		items = []domain.Product{}
	}
	return ServerMessage{Type: TypeWishlistSnapshot, Items: items}
}

// reply writes msg to this connection directly, bypassing the hub
func (c *Client) reply(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		observability.FromContext(c.ctx).Error("failed to marshal message", slog.String("error", err.Error()))
		return
	}
	if err := c.writeMessage(websocket.TextMessage, data); err != nil {
		observability.FromContext(c.ctx).Debug("failed to write reply", slog.String("error", err.Error()))
		return
	}
	observability.WebSocketMessagesSent.WithLabelValues(msg.Type).Inc()
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				_ = c.writeMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage writes a message to the WebSocket connection in a thread-safe manner
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// closeConnection safely closes the WebSocket connection
func (c *Client) closeConnection() {
	if c.closed.CompareAndSwap(false, true) {
		c.writeMu.Lock()
		c.conn.Close()
		c.writeMu.Unlock()
	}
}
