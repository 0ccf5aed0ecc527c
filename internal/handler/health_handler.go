package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Pinger is the client-state storage
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsProvider is implemented by SQL-backed storage
type StatsProvider interface {
	Stats() sql.DBStats
}

// Broker is the optional event broker connection
type Broker interface {
	IsClosed() bool
}

// Ready returns readiness check with dependencies. A nil broker means
// events are not published and is reported as disabled.
func Ready(storage Pinger, broker Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		// Check dependencies in parallel
		storageResult := make(chan HealthCheckResult, 1)
		brokerResult := make(chan HealthCheckResult, 1)

		go func() {
			storageResult <- checkStorage(ctx, storage)
		}()

		go func() {
			brokerResult <- checkBroker(broker)
		}()

		storageCheck := <-storageResult
		brokerCheck := <-brokerResult

		response := map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks": map[string]HealthCheckResult{
				"storage":  storageCheck,
				"rabbitmq": brokerCheck,
			},
		}

		allHealthy := storageCheck.Status == "up" && brokerCheck.Status != "down"

		w.Header().Set("Content-Type", "application/json")
		if allHealthy {
			response["status"] = "ready"
			w.WriteHeader(http.StatusOK)
		} else {
			response["status"] = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(response)
	}
}

// checkStorage verifies the client-state storage answers
func checkStorage(ctx context.Context, storage Pinger) HealthCheckResult {
	start := time.Now()
	err := storage.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	result := HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
	}
	if sp, ok := storage.(StatsProvider); ok {
		stats := sp.Stats()
		result.Metadata = map[string]interface{}{
			"connections_open":   stats.OpenConnections,
			"connections_in_use": stats.InUse,
			"connections_idle":   stats.Idle,
			"max_open":           stats.MaxOpenConnections,
		}
	}
	return result
}

// checkBroker verifies the RabbitMQ connection is open
func checkBroker(broker Broker) HealthCheckResult {
	if broker == nil {
		return HealthCheckResult{Status: "disabled"}
	}
	if broker.IsClosed() {
		return HealthCheckResult{
			Status: "down",
			Error:  "connection closed",
		}
	}
	return HealthCheckResult{Status: "up"}
}
