package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"banner-studio/internal/config"
	"banner-studio/internal/credentials"
	"banner-studio/internal/design"
	"banner-studio/internal/gallery"
	"banner-studio/internal/gemini"
	"banner-studio/internal/genaisdk"
	"banner-studio/internal/httpclient"
	"banner-studio/internal/metrics"
	"banner-studio/internal/webapi"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
		Logger:     logger,
	})

	m := metrics.New(nil)

	designer, err := design.New(design.Options{
		Provider: newProvider(cfg, httpClient, logger),
		Credentials: credentials.NewStatic(credentials.StaticOptions{
			Key:    cfg.GeminiAPIKey,
			Logger: logger,
		}),
		Models:   cfg.Models,
		Logger:   logger,
		Observer: m.Observer(),
	})
	if err != nil {
		logger.Error("design service init failed", "err", err)
		os.Exit(1)
	}

	api := webapi.New(webapi.Options{
		Designer: designer,
		Gallery: gallery.New(gallery.Options{
			TTL:           cfg.GalleryTTL,
			MaxPerProject: cfg.MaxGalleryImages,
		}),
		Metrics:        m,
		ServerKey:      cfg.GeminiAPIKey,
		RatePerMinute:  cfg.RateLimitPerMinute,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("web started", "addr", cfg.WebAddr, "backend", cfg.GeminiBackend, "server_key", cfg.GeminiAPIKey != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

func newProvider(cfg config.Config, httpClient *http.Client, logger *slog.Logger) design.Provider {
	if cfg.GeminiBackend == config.BackendSDK {
		return genaisdk.New(genaisdk.Options{
			BaseURL:    cfg.GeminiBaseURL,
			APIVersion: cfg.GeminiAPIVersion,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	}
	return gemini.New(gemini.Options{
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		HTTPClient: httpClient,
		Logger:     logger,
	})
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
