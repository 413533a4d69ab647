package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kchat-io/kchat/internal/api/middleware"
	"github.com/kchat-io/kchat/internal/handlers"
	"github.com/kchat-io/kchat/internal/hub"
	"github.com/kchat-io/kchat/internal/store"
)

// Options carries the router's dependencies.
type Options struct {
	Logger             zerolog.Logger
	Store              store.DataStore
	Redis              *store.RedisStore // optional
	Hub                *hub.Hub
	JWTSecret          string
	RateLimitWhitelist []string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(opts.Logger))
	r.Use(chimw.Recoverer)

	// CORS - clients connect from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(opts.Store, opts.Redis, opts.Hub, opts.Logger)
	auth := middleware.NewAuthMiddleware(opts.JWTSecret)
	limiter := middleware.NewRateLimiter(opts.Redis, opts.Logger, opts.RateLimitWhitelist)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// Authenticated routes (require session token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Use(limiter.Middleware)

		r.Post("/groups", h.CreateGroup)
		r.Get("/groups", h.ListGroups)
		r.Delete("/groups/{id}", h.DeleteGroup)
		r.Post("/groups/{id}/messages", h.PostGroupMessage)
		r.Get("/groups/{id}/messages", h.ListGroupMessages)

		r.Put("/messages/{id}", h.UpdateMessage)
		r.Delete("/messages/{id}", h.DeleteMessage)
		r.Get("/messages/recent", h.RecentMessages)
		r.Get("/messages/range", h.MessagesByDateRange)

		r.Post("/private-messages", h.SendPrivateMessage)
		r.Get("/private-messages", h.ListPrivateMessages)
		r.Get("/private-messages/conversation", h.ConversationMessages)
		r.Get("/private-messages/participants", h.ListParticipants)
		r.Get("/conversations", h.ListConversations)

		r.Get("/ws", h.Push)
	})

	return r
}
