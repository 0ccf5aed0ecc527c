package handler

import (
	"context"
	"net/http"

	"tophome-storefront/internal/auth"
	"tophome-storefront/internal/middleware"
	"tophome-storefront/internal/security"
	ws "tophome-storefront/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ShopperDirectory resolves shoppers by id and re-keys them on sign in and out
type ShopperDirectory interface {
	middleware.ShopperResolver
	ShopperRotator
}

// Dependencies is everything the router wires into handlers
type Dependencies struct {
	Shoppers ShopperDirectory
	Catalog  Catalog
	Renderer *Renderer
	Hub      *ws.Hub
	Storage  Pinger
	// Broker is nil when events are not published
	Broker Broker

	AllowedOrigins []string
	CookieSecure   bool
	OpenAPI        *middleware.OpenAPIValidatorConfig
}

// NewRouter builds the storefront's routes. Rate limiter cleanup stops when
// ctx is cancelled.
func NewRouter(ctx context.Context, deps Dependencies) http.Handler {
	catalogHandler := NewCatalogHandler(deps.Catalog, deps.Renderer)
	authHandler := NewAuthHandler(deps.Renderer, deps.Shoppers, deps.CookieSecure)
	wishlistHandler := NewWishlistHandler(deps.Catalog, deps.Renderer)
	wsHandler := NewWebSocketHandler(deps.Hub, deps.AllowedOrigins)

	authLimiter := middleware.NewRateLimiter(ctx, 5, 10)
	apiLimiter := middleware.NewRateLimiter(ctx, 20, 50)
	authLimit := authLimiter.Middleware()

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics())

	r.Get("/health", Health)
	r.Get("/health/ready", Ready(deps.Storage, deps.Broker))
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(catalogHandler.NotFound)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Shoppers(deps.Shoppers, deps.CookieSecure))
		r.Use(middleware.CSRF(security.NewTokenManager(), deps.CookieSecure))

		r.Get("/", catalogHandler.Home)
		r.Get("/products/{id}", catalogHandler.Product)

		// only reachable while signed out
		r.Group(func(r chi.Router) {
			r.Use(middleware.GuardAgainst(auth.HomePath))

			r.Get("/login", authHandler.LoginPage)
			r.With(authLimit).Post("/login", authHandler.Login)
			r.Get("/register", authHandler.RegisterPage)
			r.With(authLimit).Post("/register", authHandler.Register)
			r.Get("/forgot-password", authHandler.ForgotPasswordPage)
			r.With(authLimit).Post("/forgot-password", authHandler.ForgotPassword)
			r.Get("/verify-otp", authHandler.VerifyOTPPage)
			r.With(authLimit).Post("/verify-otp", authHandler.VerifyOTP)
			r.With(authLimit).Post("/resend-otp", authHandler.ResendOTP)
			r.Get("/reset-password", authHandler.ResetPasswordPage)
			r.With(authLimit).Post("/reset-password", authHandler.ResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Protect(auth.LoginPath))

			r.Get("/wishlist", wishlistHandler.Page)
			r.Post("/wishlist/{id}/toggle", wishlistHandler.TogglePage)
			r.Post("/logout", authHandler.Logout)
		})

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(middleware.CORS(deps.AllowedOrigins))
			r.Use(middleware.OpenAPIValidator(deps.OpenAPI))
			r.Use(apiLimiter.Middleware())

			r.Get("/products", catalogHandler.ListProducts)
			r.Get("/products/{productId}", catalogHandler.GetProduct)
			r.Get("/categories", catalogHandler.Categories)
			r.Get("/session", authHandler.Session)

			r.Group(func(r chi.Router) {
				r.Use(middleware.ProtectAPI())

				r.Get("/wishlist", wishlistHandler.Get)
				r.Post("/wishlist/refresh", wishlistHandler.Refresh)
				r.Post("/wishlist/{productId}", wishlistHandler.Add)
				r.Delete("/wishlist/{productId}", wishlistHandler.Remove)
				r.Post("/wishlist/{productId}/toggle", wishlistHandler.Toggle)
			})
		})

		r.With(middleware.ProtectAPI()).Get("/ws/wishlist", wsHandler.HandleConnection)
	})

	return r
}
