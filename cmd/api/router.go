package main

import (
	"log/slog"
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/time/rate"
)

// newRouter assembles the HTTP surface: import routes behind CORS and a
// global rate limit, plus liveness/readiness probes.
func newRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()
	deps.ImportHandler.Register(mux)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.DB.Pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	limiter := rate.NewLimiter(
		rate.Limit(deps.Config.Server.RateLimitPerSecond),
		deps.Config.Server.RateLimitBurst,
	)

	handler := rateLimit(limiter, mux)
	handler = cors.New(cors.Options{
		AllowedOrigins: []string{deps.Config.Server.BaseURL},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(handler)
	return logRequests(deps.Logger, handler)
}

func rateLimit(limiter *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	})
}
