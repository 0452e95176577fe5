package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harliandi/go-kycimage/internal/config"
	"github.com/harliandi/go-kycimage/internal/handler"
	"github.com/harliandi/go-kycimage/internal/middleware"
	"github.com/harliandi/go-kycimage/internal/storage"
	"github.com/harliandi/go-kycimage/internal/worker"
	"github.com/harliandi/go-kycimage/pkg/compression"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	shutdownTimeout = 30 * time.Second
	// submitRetries bounds how long a request waits for a free queue slot
	submitRetries = 5
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := worker.NewPool(cfg.WorkerCount, logger)
	pool.Start()
	defer pool.Stop()

	store, err := storage.NewFileStore(cfg.StorageDir)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      newRouter(cfg, pool.Retrying(submitRetries), store, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("starting image compression API",
		"addr", server.Addr,
		"max_upload_mb", cfg.MaxUploadMB,
		"max_concurrent", cfg.MaxConcurrent,
		"rate_limit", cfg.RateLimitPerSec,
		"workers", cfg.WorkerCount,
		"storage_dir", cfg.StorageDir,
		"format", cfg.DefaultFormat,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newRouter wires the endpoints and the middleware chain.
func newRouter(cfg *config.Config, compress compression.CompressFunc, uploader storage.Uploader, logger *slog.Logger) http.Handler {
	format, _ := compression.ParseFormat(cfg.DefaultFormat)
	resampler, _ := compression.ParseResampler(cfg.Resampler)

	h := handler.New(compress, uploader, handler.Settings{
		MaxUploadMB:  cfg.MaxUploadMB,
		AutoCompress: cfg.AutoCompress,
		Format:       format,
		Resampler:    resampler,
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/compress", h.Compress)
	mux.HandleFunc("/upload", h.Upload)
	mux.HandleFunc("/recommendations", h.Recommendations)
	mux.HandleFunc("/health", h.Health)
	mux.Handle("/metrics", promhttp.Handler())

	// Apply middlewares in order (outermost first):
	// 1. Security headers (always applied)
	// 2. Logger (request ID, logs requests)
	// 3. Rate limiting (per IP)
	// 4. Concurrency limit (global)
	// 5. Recovery (catches panics)
	return middleware.Security(
		middleware.Logger(
			middleware.RateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst)(
				middleware.ConcurrencyLimit(cfg.MaxConcurrent)(
					middleware.Recovery(mux),
				),
			),
		),
	)
}
