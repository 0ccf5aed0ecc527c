package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"tophome-storefront/internal/observability"
	"tophome-storefront/internal/security"
)

const (
	CSRFCookieName            = "tophome_csrf"
	CSRFTokenKey   contextKey = "csrf_token"
	csrfFormField             = "csrf_token"
	csrfHeader                = "X-CSRF-Token"
	csrfAltHeader             = "X-XSRF-Token"
)

// CSRF implements the double-submit cookie pattern. Every response carries
// a token cookie; state-changing requests must echo it back.
//
// Token sources (checked in order):
// - Form field: csrf_token
// - Header: X-CSRF-Token
// - Header: X-XSRF-Token (alternate)
func CSRF(tm *security.TokenManager, secureCookie bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			issued := ""
			if cookie, err := r.Cookie(CSRFCookieName); err == nil {
				issued = cookie.Value
			}

			if !isSafeMethod(r.Method) && !isExemptPath(r.URL.Path) {
				if err := tm.Verify(issued, extractCSRFToken(r)); err != nil {
					logCSRFFailure(r, err.Error())
					http.Error(w, `{"error":"Forbidden"}`, http.StatusForbidden)
					return
				}
			}

			if issued == "" {
				token, err := tm.Generate()
				if err != nil {
					observability.FromContext(r.Context()).Error("failed to generate CSRF token",
						slog.String("error", err.Error()))
					http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
					return
				}
				issued = token
				http.SetCookie(w, &http.Cookie{
					Name:     CSRFCookieName,
					Value:    token,
					Path:     "/",
					HttpOnly: true,
					Secure:   secureCookie,
					SameSite: http.SameSiteLaxMode,
				})
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), CSRFTokenKey, issued)))
		})
	}
}

// GetCSRFToken returns the token templates embed in their forms
func GetCSRFToken(ctx context.Context) string {
	token, _ := ctx.Value(CSRFTokenKey).(string)
	return token
}

// isSafeMethod returns true if the HTTP method does not modify state
func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

// isExemptPath returns true if the request path should skip CSRF validation
func isExemptPath(path string) bool {
	exemptPaths := []string{
		"/health",
		"/metrics",
		"/ws/",
	}

	for _, exemptPath := range exemptPaths {
		if strings.HasPrefix(path, exemptPath) {
			return true
		}
	}
	return false
}

// extractCSRFToken extracts the CSRF token from the request
func extractCSRFToken(r *http.Request) string {
	if token := r.Header.Get(csrfHeader); token != "" {
		return token
	}
	if token := r.Header.Get(csrfAltHeader); token != "" {
		return token
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return r.FormValue(csrfFormField)
	}
	return ""
}

func logCSRFFailure(r *http.Request, reason string) {
	observability.FromContext(r.Context()).Warn("CSRF validation failed",
		slog.String("reason", reason),
		slog.String("method", r.Method),
		slog.String("path", r.RequestURI),
		slog.String("remote_addr", r.RemoteAddr),
	)
}
