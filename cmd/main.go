package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transcript-sync-service/internal/app"
	"transcript-sync-service/internal/config"
	"transcript-sync-service/internal/events"
	httpapi "transcript-sync-service/internal/http"
	"transcript-sync-service/internal/observability"
	"transcript-sync-service/internal/observability/logging"
	"transcript-sync-service/internal/service/recording"
	"transcript-sync-service/internal/service/session"
	"transcript-sync-service/internal/store"
	"transcript-sync-service/internal/transport/ws"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		l := logging.Logger()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     os.Getenv("LOG_FORMAT"),
		TimeFormat: time.RFC3339,
	})

	application := app.New(cfg)
	if err := application.Start(); err != nil {
		application.Logger.Fatal().Err(err).Msg("Application start failed")
	}
	logger := application.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st *store.Store
	if cfg.Store.Enabled {
		st, err = store.Open(ctx, cfg.Store.Path, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open session store")
		}
		defer st.Close()
	}

	recorder, err := recording.New(cfg.Recordings.Dir, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.Recordings.Dir).Msg("Failed to init recordings dir")
	}

	publisher := events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicCommitted:  cfg.Kafka.TopicCommitted,
		TopicResolution: cfg.Kafka.TopicResolution,
		Principal:       cfg.Service.Principal,
	})
	defer publisher.Close()

	hub := ws.New(logger)
	manager := session.NewManager(st, recorder, publisher, hub, logger)
	manager.SetPlaybackTick(cfg.Playback.Tick)
	hub.SetManager(manager)

	obsServer := observability.NewServer(cfg.Observability.MetricsAddr)
	obsServer.Start()

	server := &http.Server{
		Addr:         ":" + cfg.Service.HTTPPort,
		Handler:      httpapi.NewRouter(application, manager, hub),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Service.HTTPPort).Msg("Transcript sync service started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}
	manager.Shutdown(shutdownCtx)
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Observability shutdown failed")
	}
	application.Shutdown()
}
