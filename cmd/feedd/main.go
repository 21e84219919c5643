package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feed-aggregator/internal/api"
	"feed-aggregator/internal/config"
	"feed-aggregator/internal/engine"
	"feed-aggregator/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.LogLevel)
	log.Info().Str("environment", cfg.Environment).Msg("Starting feed daemon")

	eng, err := engine.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize engine")
	}

	if err := eng.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start engine")
	}

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.NewServer(eng, cfg, log).Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Management API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("API server shutdown failed")
	}

	eng.Stop()
	log.Info().Msg("Shutdown complete")
}
