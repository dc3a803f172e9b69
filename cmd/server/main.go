package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/mirko1075/in-one-button-be/internal/adapters/http"
	"github.com/mirko1075/in-one-button-be/internal/adapters/recognition"
	"github.com/mirko1075/in-one-button-be/internal/app"
	"github.com/mirko1075/in-one-button-be/internal/auth"
	"github.com/mirko1075/in-one-button-be/internal/config"
	"github.com/mirko1075/in-one-button-be/internal/core"
	"github.com/mirko1075/in-one-button-be/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	store, err := storage.NewStore(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer store.Close()

	coord := &app.Coordinator{
		Registry:   app.NewRegistry(),
		Rooms:      app.NewRoomManager(),
		Recognizer: recognition.NewDeepgram(cfg.Recognition.APIKey),
		Owners:     store,
		Store:      store,
		StreamConfig: core.StreamConfig{
			Model:          cfg.Recognition.Model,
			Language:       cfg.Recognition.Language,
			Punctuate:      cfg.Recognition.Punctuate,
			InterimResults: cfg.Recognition.InterimResults,
			Diarize:        cfg.Recognition.Diarize,
			Encoding:       cfg.Recognition.Encoding,
			SampleRate:     cfg.Recognition.SampleRate,
			Channels:       cfg.Recognition.Channels,
		},
		DrainWindow: cfg.DrainWindow,
	}

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	r := router.SetupRouter(ctx, cfg, coord, verifier)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("transcription server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownWindow)
	defer shutdownCancel()

	// Drain live sessions first so transcripts get persisted, then stop
	// accepting connections.
	coord.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
