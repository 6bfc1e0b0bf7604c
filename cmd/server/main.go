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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/AngelCh415/shopads/internal/config"
	"github.com/AngelCh415/shopads/internal/httpx"
	"github.com/AngelCh415/shopads/internal/ingest"
	"github.com/AngelCh415/shopads/internal/logger"
	"github.com/AngelCh415/shopads/internal/session"
	"github.com/AngelCh415/shopads/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	lg := logger.New(logger.Options{
		ServiceName: "shopads",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	apiMetrics := telemetry.NewAPIMetrics(reg)

	backends, err := session.OpenBackends(ctx, cfg.TokenCache)
	if err != nil {
		lg.Fatal().Err(err).Str("backend", cfg.TokenCache.Backend).Msg("token cache")
	}
	defer backends.Close()

	sessions := session.NewRegistry(&session.Builder{
		Base:     cfg,
		Backends: backends,
		HTTP:     ingest.NewHTTPClient(0),
		Metrics:  apiMetrics,
		Log:      lg,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           httpx.NewRouter(lg, sessions, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	lg.Info().
		Str("port", cfg.App.Port).
		Str("token_cache", backends.Kind()).
		Bool("storefront", cfg.WooCommerce.Configured()).
		Bool("ads", cfg.Meta.AccountID != "").
		Bool("meta_app", cfg.Meta.Configured()).
		Msg("starting server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}
