package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Remote storefront API metrics
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_upstream_request_duration_seconds",
			Help:    "Latency of calls to the remote storefront API",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "status"},
	)

	CatalogFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_catalog_fallbacks_total",
			Help: "Catalog reads served from the bundled product list",
		},
		[]string{"operation"},
	)

	// Wishlist metrics
	WishlistOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_wishlist_operations_total",
			Help: "Wishlist operations by kind and outcome",
		},
		[]string{"op", "outcome"},
	)

	// Session metrics
	ActiveShoppers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_active_shoppers",
			Help: "Number of shoppers currently held in memory",
		},
	)

	SessionLogoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_session_logouts_total",
			Help: "Session teardowns by reason",
		},
		[]string{"reason"},
	)

	// WebSocket metrics
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of messages sent via WebSocket",
		},
		[]string{"type"},
	)

	// Messaging metrics
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_events_published_total",
			Help: "Wishlist events published to the message broker",
		},
		[]string{"routing_key", "status"},
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"operation", "table"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)
