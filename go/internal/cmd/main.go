package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := configFromEnv()
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	tuning, err := loadTuning(cfg.TuningFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.TuningFile).Msg("failed to load tuning")
	}

	services, err := setupServices(cfg, tuning)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}

	server := setupServer(cfg, services)

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("case_api", cfg.CaseAPIURL).
			Str("asset_store", cfg.AssetBaseURL).
			Int("asset_cache_size", cfg.AssetCacheSize).
			Msg("caseroll server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := services.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("event publisher close failed")
	}

	log.Info().Msg("caseroll shutdown complete")
}

// setupLogging configures the global logger: console output when format is
// "console", JSON otherwise.
func setupLogging(level, format string) {
	if strings.EqualFold(format, "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
