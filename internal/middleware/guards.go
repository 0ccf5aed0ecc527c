package middleware

import (
	"net/http"
)

func authenticated(r *http.Request) bool {
	sh, ok := GetShopper(r.Context())
	return ok && sh.Session.IsAuthenticated()
}

// Protect lets only authenticated shoppers through and redirects everyone
// else to loginPath without rendering anything.
func Protect(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authenticated(r) {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GuardAgainst bounces authenticated shoppers to homePath. Used on the
// login, registration and recovery pages.
func GuardAgainst(homePath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authenticated(r) {
				http.Redirect(w, r, homePath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ProtectAPI is Protect for JSON endpoints: it answers 401 instead of redirecting
func ProtectAPI() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authenticated(r) {
				http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
