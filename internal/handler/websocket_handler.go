package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"tophome-storefront/internal/middleware"
	"tophome-storefront/internal/observability"
	ws "tophome-storefront/internal/websocket"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades authenticated shoppers to a live wishlist feed
type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. Cross-origin
// upgrades are accepted only from allowedOrigins.
func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

// HandleConnection handles WebSocket upgrade and connection
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	sh, ok := middleware.GetShopper(r.Context())
	if !ok || !sh.Session.IsAuthenticated() {
		http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.FromContext(r.Context()).Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	// the connection outlives the request
	client := ws.NewClient(context.WithoutCancel(r.Context()), h.hub, conn, sh.ID, sh.Wishlist)

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// checkOrigin allows same-host requests, requests without an Origin header
// and the configured origins.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == origin || o == "*" {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
