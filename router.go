package main

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogchi "github.com/samber/slog-chi"

	"gojuon-server/config"
	"gojuon-server/handlers"
	"gojuon-server/websocket"
)

var (
	corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsHeaders = []string{"Content-Type", "Authorization"}
)

type routerDeps struct {
	cfg    *config.Config
	logger *slog.Logger

	tts    http.Handler
	static http.Handler

	// optional
	registry *prometheus.Registry
	hub      *websocket.Hub
}

func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(slogchi.New(deps.logger.With("component", "http")))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(deps.cfg.CORS))

	// Unknown paths are assets
	r.NotFound(deps.static.ServeHTTP)

	r.Route("/api/tts", func(r chi.Router) {
		r.MethodNotAllowed(handlers.MethodNotAllowed)
		r.Post("/", deps.tts.ServeHTTP)
	})

	r.Get("/health", handlers.Health)

	if deps.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{Registry: deps.registry}))
	}

	if deps.hub != nil {
		r.Get("/ws", deps.hub.HandleWebSocket)
	}

	r.Handle("/*", deps.static)

	return r
}

// corsMiddleware stamps the CORS headers and answers every OPTIONS request
// with an empty 200. With explicit origins the matching is left to go-chi/cors.
func corsMiddleware(cfg config.CORSConfig) func(http.Handler) http.Handler {
	if cfg.Permissive() {
		return permissiveCORS
	}

	restricted := cors.Handler(cors.Options{
		AllowedOrigins:     cfg.AllowedOrigins,
		AllowedMethods:     corsMethods,
		AllowedHeaders:     corsHeaders,
		OptionsPassthrough: true,
	})

	return func(next http.Handler) http.Handler {
		return restricted(answerOptions(next))
	}
}

func permissiveCORS(next http.Handler) http.Handler {
	methods := strings.Join(corsMethods, ", ")
	headers := strings.Join(corsHeaders, ", ")
	inner := answerOptions(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.Header().Set("Access-Control-Allow-Headers", headers)

		inner.ServeHTTP(w, r)
	})
}

func answerOptions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
