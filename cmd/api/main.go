package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"atelier-backend/internal/config"
	"atelier-backend/internal/interfaces/router"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	setupLogging(cfg)

	srv, err := router.CreateApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("app create")
	}
	if err := srv.Rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	log.Info().Msg("Redis connected")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	log.Info().
		Str("addr", addr).
		Str("env", cfg.Env).
		Bool("redis_relay", srv.Relay != nil).
		Bool("kafka", srv.Kafka != nil).
		Msg("Server running")
	if err := srv.Run(ctx, addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("Server stopped")
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
