package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// OpenAPIValidatorConfig holds configuration for OpenAPI validation middleware
type OpenAPIValidatorConfig struct {
	// Enabled controls whether validation is active
	Enabled bool
	// SpecPath is the path to the OpenAPI specification file
	SpecPath string
	// ValidateRequests enables request validation
	ValidateRequests bool
	// ValidateResponses enables response validation (impacts performance)
	ValidateResponses bool
	// Prefixes limits validation to matching paths; pages and websockets are not described
	Prefixes []string
}

// NewOpenAPIValidatorConfig validates requests to the JSON API only
func NewOpenAPIValidatorConfig(enabled bool, specPath string) *OpenAPIValidatorConfig {
	return &OpenAPIValidatorConfig{
		Enabled:           enabled,
		SpecPath:          specPath,
		ValidateRequests:  true,
		ValidateResponses: false,
		Prefixes:          []string{"/api/v1/"},
	}
}

func loadOpenAPIRouter(specPath string) (routers.Router, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAPI router: %w", err)
	}
	return router, nil
}

// OpenAPIValidator creates a middleware that validates HTTP requests and responses
// against an OpenAPI 3.0 specification. A missing or broken spec disables it.
func OpenAPIValidator(config *OpenAPIValidatorConfig) func(next http.Handler) http.Handler {
	passthrough := func(next http.Handler) http.Handler { return next }

	if config == nil || !config.Enabled {
		slog.Info("OpenAPI validation disabled")
		return passthrough
	}

	router, err := loadOpenAPIRouter(config.SpecPath)
	if err != nil {
		slog.Error("OpenAPI validation unavailable",
			slog.String("path", config.SpecPath),
			slog.String("error", err.Error()))
		return passthrough
	}

	slog.Info("OpenAPI validation enabled",
		slog.Bool("validate_requests", config.ValidateRequests),
		slog.Bool("validate_responses", config.ValidateResponses),
		slog.String("spec_path", config.SpecPath))

	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasAnyPrefix(r.URL.Path, config.Prefixes) {
				next.ServeHTTP(w, r)
				return
			}

			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				if config.ValidateRequests {
					slog.Warn("request path not found in OpenAPI spec",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path))
					writeValidationError(w, http.StatusNotFound, fmt.Sprintf("Path not found in OpenAPI spec: %s %s", r.Method, r.URL.Path))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}

			if config.ValidateRequests {
				if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
					slog.Warn("request validation failed",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()))
					writeValidationError(w, http.StatusBadRequest, fmt.Sprintf("Request validation failed: %s", err.Error()))
					return
				}
			}

			if !config.ValidateResponses {
				next.ServeHTTP(w, r)
				return
			}

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			responseInput := &openapi3filter.ResponseValidationInput{
				RequestValidationInput: input,
				Status:                 recorder.statusCode,
				Header:                 recorder.Header(),
				Body:                   io.NopCloser(bytes.NewReader(recorder.body)),
				Options:                options,
			}
			// the response is already sent, so failures are only logged
			if err := openapi3filter.ValidateResponse(r.Context(), responseInput); err != nil {
				slog.Warn("response validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", recorder.statusCode),
					slog.String("error", err.Error()))
			}
		})
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// writeValidationError writes a JSON error response
func writeValidationError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// responseRecorder wraps http.ResponseWriter to capture response data
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return r.ResponseWriter.Write(b)
}
