package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/momento/go/internal/room/gateway"
)

func setupServer(config *Config, service *gateway.Service, gatherer prometheus.Gatherer) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", config.Port),
		Handler:           setupHandler(service, gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func setupHandler(service *gateway.Service, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(gateway.RequestLogger)
	r.Use(middleware.Recoverer)

	// Register services
	service.RegisterRoutes(r)

	// Add health check and metrics endpoints
	setupHealthCheck(r)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Wrap with CORS and serve HTTP/2 without TLS
	return h2c.NewHandler(c.Handler(r), &http2.Server{})
}

func setupHealthCheck(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
