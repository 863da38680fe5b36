package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	config, err := resolveConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(config.LogLevel)

	if err := run(config); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

func run(config *Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := setupStore(ctx, config)
	if err != nil {
		return err
	}
	defer store.Close()

	service, err := setupGateway(config, store, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	server := setupServer(config, service, prometheus.DefaultGatherer)

	serviceDone := make(chan error, 1)
	go func() {
		serviceDone <- service.Start(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("registry", config.Registry.Backend).
			Bool("relay", config.NATS.URL != "").
			Msg("momento server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serviceDone:
		// The gateway only returns early when its relay fails to start
		shutdownServer(server)
		return err
	case err := <-serverErr:
		if err != nil {
			stop()
			<-serviceDone
			return err
		}
	}

	log.Info().Msg("shutting down")
	shutdownServer(server)

	stop()
	return <-serviceDone
}

func shutdownServer(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to shut down http server")
	}
}
