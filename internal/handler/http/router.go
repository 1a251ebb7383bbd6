package http

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
)

// NewRouter builds the operator control surface. The logger comes from the
// caller so HTTP access logs share the ring buffer behind GET /logs.
func NewRouter(logger *slog.Logger, bridgeHandler BridgeHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelDebug,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))

	r.Get("/status", bridgeHandler.Status)
	r.Get("/logs", bridgeHandler.Logs)
	r.Post("/trigger-absent", bridgeHandler.TriggerAbsent)
	r.Post("/sync-users", bridgeHandler.SyncUsers)
	r.Post("/sync-logs", bridgeHandler.SyncLogs)

	return r
}
