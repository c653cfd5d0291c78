/*
Package handler provides the HTTP handlers and routing setup for the Text Relay server.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"textrelay/internal/pkg/auth/jwt"
	"textrelay/internal/pkg/limiter"
	"textrelay/internal/pkg/logx"
	"textrelay/internal/pkg/resp"
)

const (
	ConnectRate  = 1
	ConnectBurst = 10
	AuthRate     = 0.5
	AuthBurst    = 10
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It initializes IP-based rate limiters, configures CORS, and applies global and per-route middleware.
// The returned stop function terminates the background goroutines of the rate limiters.
func Router(deps *AppDeps) (http.Handler, func()) {
	connectLimiter := limiter.NewIPRateLimiter(rate.Limit(ConnectRate), ConnectBurst)
	authLimiter := limiter.NewIPRateLimiter(rate.Limit(AuthRate), AuthBurst)

	r := chi.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   corsOrigins(deps),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", HandleHealth(deps))

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.Route("/auth", func(auth chi.Router) {
			auth.Use(authLimiter.Middleware)
			auth.Post("/register", HandleRegister(deps))
			auth.Post("/token", HandleToken(deps))
		})

		api.Get("/history", HandleHistory(deps))
	})

	r.Get("/ws", HandleWebSocket(deps, newUpgrader(deps), connectLimiter))

	stop := func() {
		connectLimiter.Stop()
		authLimiter.Stop()
	}
	return r, stop
}

// HandleHealth reports liveness together with the number of connections being served.
func HandleHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logx.Debug("Health check endpoint hit")

		resp.RespondSuccess(w, r, map[string]any{
			"status":   "ok",
			"service":  "Text Relay",
			"sessions": deps.Server.ActiveSessions(),
		})
	}
}

func newUpgrader(deps *AppDeps) websocket.Upgrader {
	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}
}

func corsOrigins(deps *AppDeps) []string {
	if deps.Config.IsDevelopment() {
		return []string{"*"}
	}
	return deps.Config.AllowedOrigins
}
