package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/warefront/presence/internal/adapters/gateway"
	router "github.com/warefront/presence/internal/adapters/http"
	"github.com/warefront/presence/internal/auth"
	"github.com/warefront/presence/internal/config"
	"github.com/warefront/presence/internal/presence"
	redismirror "github.com/warefront/presence/internal/storage/redis"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	var mirror presence.Mirror = presence.NopMirror{}
	if cfg.Redis.Addr != "" {
		m, err := redismirror.NewMirror(redismirror.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Error().Err(err).Msg("redis mirror unavailable, continuing without it")
		} else {
			defer m.Close()
			mirror = m
			log.Info().Str("addr", cfg.Redis.Addr).Msg("redis occupancy mirror enabled")
		}
	}

	registry := presence.NewRegistry(mirror)
	gw := gateway.NewGateway(registry, cfg)
	tokens := auth.NewManager(cfg.Secret, time.Hour)

	r := router.SetupRouter(cfg, gw, tokens)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("presence server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	// Shutdown does not cover hijacked WebSocket connections; close the live
	// sessions first so every room empties and peers see the socket drop.
	registry.CloseAll()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}
