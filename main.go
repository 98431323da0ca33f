package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/120m4n/infovis/config"
	"github.com/120m4n/infovis/internal"
	"github.com/120m4n/infovis/internal/api"
	"github.com/120m4n/infovis/internal/control"
	"github.com/120m4n/infovis/internal/logging"
	"github.com/120m4n/infovis/internal/service"
	"github.com/120m4n/infovis/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatal().Err(err).Msg("Error loading configuration")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	// Log inicial de configuración (solo al iniciar)
	logging.Info().
		Int("port", cfg.ListeningPort).
		Str("database", cfg.DatabaseName).
		Str("collection", cfg.CollectionName).
		Str("districts", cfg.DistrictsCollection).
		Msg("Server starting")

	store := storage.NewMongo(storage.Options{
		URI:                    cfg.MongoURI,
		Host:                   cfg.DBHost,
		Port:                   cfg.DBPort,
		User:                   cfg.DBUser,
		Password:               cfg.DBPassword,
		AuthDB:                 cfg.AuthDB,
		Database:               cfg.DatabaseName,
		ServerSelectionTimeout: cfg.ServerSelectionTimeout,
	})

	// The server starts even when MongoDB is down; requests fail with 500
	// until it comes back.
	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerSelectionTimeout)
	if err := store.HealthCheck(pingCtx); err != nil {
		logging.Warn().Err(err).Msg("MongoDB not reachable at startup")
	}
	cancel()

	stats := internal.NewStats()
	svc := service.New(store, cfg.CollectionName, cfg.DistrictsCollection)

	// Optional admin channel
	var nc *nats.Conn
	if cfg.NatsURL != "" {
		nc, err = connectNATS(cfg.NatsURL)
		if err != nil {
			logging.Error().Err(err).Str("url", cfg.NatsURL).Msg("Error connecting to NATS, admin channel disabled")
		} else {
			admin := control.NewHandler(cfg.NatsSubject, store, cfg.ServerSelectionTimeout)
			if _, err := admin.Subscribe(nc); err != nil {
				logging.Error().Err(err).Msg("Error subscribing to admin subject")
			}
		}
	}

	shutdown := make(chan struct{})
	var once sync.Once
	requestShutdown := func() { once.Do(func() { close(shutdown) }) }

	handler := api.NewHandler(svc, stats, cfg.QueryLimitCount, cfg.HighlightLimit, requestShutdown)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(handler, api.NewHealth(store, nc, stats)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Iniciar reporte de estadísticas
	go startStatsReporter(stats, cfg.StatsInterval)

	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logging.Info().Str("signal", s.String()).Msg("Signal received, shutting down")
	case <-shutdown:
		logging.Info().Msg("Shutdown endpoint called, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("Error shutting down HTTP server")
	}
	if err := store.Close(ctx); err != nil {
		logging.Error().Err(err).Msg("Error closing MongoDB client")
	}
	if nc != nil {
		nc.Close()
	}
	logging.Info().Msg("Server stopped")
}

func connectNATS(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("infovis"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("Disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.Info().Str("url", c.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
	)
}

// startStatsReporter logs the request counters every interval and resets them.
func startStatsReporter(stats *internal.Stats, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		s := stats.Reset()
		logging.Info().
			Int64("requests", s.Requests).
			Int64("store_errors", s.StoreErrors).
			Int64("param_fallbacks", s.ParamFallbacks).
			Int64("not_found", s.NotFound).
			Msg("Stats")
	}
}
