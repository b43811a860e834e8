package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/survey-collector/internal/api"
	"github.com/ignite/survey-collector/internal/config"
	"github.com/ignite/survey-collector/internal/document"
	"github.com/ignite/survey-collector/internal/mailer"
	"github.com/ignite/survey-collector/internal/pkg/logger"
	"github.com/ignite/survey-collector/internal/survey"
)

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Default(cfg.Log.Level)
	log.Info().
		Str("storage", cfg.Storage.Type).
		Str("mailer", cfg.Mailer.Provider).
		Msg("starting survey collector")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the document store
	store, err := document.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	// Initialize the verification mailer
	m, err := mailer.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize mailer")
	}

	// Initialize the survey manager
	manager, err := survey.NewManager(store, m, cfg.Survey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize survey manager")
	}
	defer manager.Close()

	server := api.NewServer(cfg, manager, log)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		log.Info().Str("addr", addr).Msg("server listening")
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-done
	log.Info().Msg("shutting down")

	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}
