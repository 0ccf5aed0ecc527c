package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://tophome.example"})(okHandler())

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
		wantBody   bool
	}{
		{"allowed origin", http.MethodGet, "https://tophome.example", "https://tophome.example", http.StatusOK, true},
		{"other origin", http.MethodGet, "https://evil.example", "", http.StatusOK, true},
		{"no origin", http.MethodGet, "", "", http.StatusOK, true},
		{"preflight", http.MethodOptions, "https://tophome.example", "https://tophome.example", http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/wishlist", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantBody, w.Body.String() == "content")
			if tt.wantOrigin != "" {
				assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-CSRF-Token")
			}
		})
	}
}

func TestCORS_Wildcard(t *testing.T) {
	handler := CORS([]string{"*"})(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, "https://anywhere.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseOrigins(t *testing.T) {
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, ParseOrigins(" http://a.example, ,http://b.example "))
	assert.Empty(t, ParseOrigins(""))
}
