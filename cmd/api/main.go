package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zombar/analyzer/api"
	"github.com/zombar/analyzer/config"
	"github.com/zombar/analyzer/db"
	"github.com/zombar/analyzer/fetch"
	"github.com/zombar/analyzer/logging"
	"github.com/zombar/analyzer/ocr"
	"github.com/zombar/analyzer/sentiment"
	"github.com/zombar/analyzer/tracing"
)

func main() {
	envFile := flag.String("env-file", "", "Optional .env file to load before reading configuration")
	flag.Parse()

	config.LoadEnv(*envFile)
	cfg := config.Load()

	logging.Init(cfg.Server.Environment)
	slog.Info("analyzer service initializing", "environment", cfg.Server.Environment)

	tp, err := tracing.InitTracer("analyzer")
	if err != nil {
		slog.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("error shutting down tracer", "error", err)
			}
		}()
	}

	if cfg.Database.DSN == "" && cfg.Database.Driver == "postgres" {
		slog.Error("DATABASE_DSN is required for the postgres driver")
		os.Exit(1)
	}

	fetchConfig := fetch.DefaultConfig()
	fetchConfig.Timeout = cfg.Fetch.Timeout
	fetchConfig.MaxBodyBytes = cfg.Fetch.MaxBodyBytes
	fetchConfig.MaxRedirects = cfg.Fetch.MaxRedirects

	serverConfig := api.Config{
		Addr: ":" + cfg.Server.Port,
		DBConfig: db.Config{
			Driver: cfg.Database.Driver,
			DSN:    cfg.Database.DSN,
		},
		FetchConfig: fetchConfig,
		OCRConfig: ocr.Config{
			BaseURL: cfg.OCR.BaseURL,
			Timeout: cfg.OCR.Timeout,
		},
		HugotConfig: sentiment.HugotConfig{
			ModelsDir: cfg.Sentiment.ModelsDir,
			ModelName: cfg.Sentiment.ModelName,
			Download:  cfg.Sentiment.Download,
		},
		EnableSmartTier:      cfg.Sentiment.EnableSmartTier,
		AllowPrivateNetworks: cfg.Fetch.AllowPrivateNetworks,
		CORSEnabled:          cfg.Server.CORSEnabled,
	}

	server, err := api.NewServer(serverConfig)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("analyzer service starting",
			"port", cfg.Server.Port,
			"database_driver", cfg.Database.Driver,
			"smart_tier_enabled", cfg.Sentiment.EnableSmartTier,
			"ocr_url", cfg.OCR.BaseURL,
		)

		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
