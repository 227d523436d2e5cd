package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"arcade/config"
	"arcade/core"
	"arcade/games/bingo"
	"arcade/games/guessword"
	"arcade/platform"
	"arcade/server"
	"arcade/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config")
	}

	log := newLogger(cfg.Debug)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// Content store is optional. Without it the word game falls back to
	// its built-in pool.
	var words guessword.WordSource
	var repo *storage.ContentRepo
	if cfg.PostgresURL != "" {
		if err := storage.Migrate(cfg.PostgresURL); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
		repo, err = storage.NewContentRepo(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect postgres")
		}
		defer repo.Close()
		words = repo
	} else {
		log.Warn().Msg("no postgres url, word content disabled")
	}

	registry := core.NewRegistry(log)
	for _, d := range []*core.Descriptor{
		guessword.New(words, log),
		bingo.New(log),
	} {
		if err := registry.Register(ctx, d); err != nil {
			log.Fatal().Err(err).Str("plugin", d.ID).Msg("register plugin")
		}
	}

	sessions := core.NewSessionManager(cfg.SessionKey)
	manager := core.NewManager(registry, sessions, core.ManagerConfig{
		GraceWindow: cfg.GraceWindow,
		GCInterval:  cfg.GCInterval,
	}, log)
	manager.StartGC()

	dispatcher := core.NewDispatcher(registry, manager, log)
	friends := platform.NewFriendsClient(cfg.FriendsBaseURL, log)

	srv := server.New(registry, manager, dispatcher, friends, cfg.AllowedOrigins, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(cfg.Addr) }()
	log.Info().Str("addr", cfg.Addr).Int("plugins", registry.Count()).Msg("listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("server stopped")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, err := range registry.DestroyAll(shutdownCtx) {
		log.Error().Err(err).Msg("plugin cleanup")
	}
	manager.Shutdown()
}

func newLogger(debug bool) zerolog.Logger {
	if debug {
		out := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
		return out.Level(zerolog.DebugLevel).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}
