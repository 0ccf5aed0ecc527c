package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tophome-storefront/internal/observability"
	"tophome-storefront/internal/shopper"

	"github.com/google/uuid"
)

type contextKey string

const (
	ShopperKey contextKey = "shopper"

	ShopperCookieName = "tophome_shopper"
	shopperCookieAge  = 365 * 24 * time.Hour
)

// ShopperResolver returns a hydrated shopper for an id
type ShopperResolver interface {
	Get(ctx context.Context, id string) (*shopper.Shopper, error)
}

// Shoppers identifies the visitor by cookie, issuing a new id on first
// visit, and puts the hydrated shopper in the request context. Handlers and
// guards downstream never see a session that is still loading.
func Shoppers(resolver ShopperResolver, secureCookie bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := shopperID(r)
			if id == "" {
				id = uuid.NewString()
				SetShopperCookie(w, id, secureCookie)
			}

			ctx := observability.WithShopperID(r.Context(), id)
			sh, err := resolver.Get(ctx, id)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				observability.FromContext(ctx).Error("failed to load shopper", slog.String("error", err.Error()))
				http.Error(w, `{"error":"Service temporarily unavailable"}`, http.StatusServiceUnavailable)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithShopper(ctx, sh)))
		})
	}
}

// SetShopperCookie hands the client its shopper id
func SetShopperCookie(w http.ResponseWriter, id string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     ShopperCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(shopperCookieAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// shopperID returns the cookie value if it is a well-formed id
func shopperID(r *http.Request) string {
	cookie, err := r.Cookie(ShopperCookieName)
	if err != nil {
		return ""
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return ""
	}
	return id.String()
}

func GetShopper(ctx context.Context) (*shopper.Shopper, bool) {
	sh, ok := ctx.Value(ShopperKey).(*shopper.Shopper)
	return sh, ok && sh != nil
}

func WithShopper(ctx context.Context, sh *shopper.Shopper) context.Context {
	return context.WithValue(ctx, ShopperKey, sh)
}
