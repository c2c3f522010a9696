package main

import (
	"context"
	"net/http"

	"github.com/rs/cors"

	"github.com/roastmyui/backend/internal/config"
	"github.com/roastmyui/backend/internal/httpserver"
	"github.com/roastmyui/backend/internal/metrics"
)

// buildHandler mounts the API next to the operational endpoints and applies
// CORS for the web app and the browser extension.
func buildHandler(cfg config.ServerConfig, api http.Handler, m *metrics.Metrics, ping func(context.Context) error) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", api)
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", httpserver.Health(ping))

	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)
}
