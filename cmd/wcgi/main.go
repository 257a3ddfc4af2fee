// Command wcgi runs the HTTP-to-WebAssembly gateway: it dispatches
// incoming requests to wgi-bin scripts on disk, executes them as WASI
// guests, and translates their output back into HTTP responses, in
// either CGI or Lambda-event mode.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wasmcgi/wcgi/internal/config"
	"github.com/wasmcgi/wcgi/internal/gateway"
	"github.com/wasmcgi/wcgi/internal/logging"
	"github.com/wasmcgi/wcgi/internal/sandbox"
)

func main() {
	cfg := config.FromEnv()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("wcgi: build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	harness, err := sandbox.New(ctx, cfg.CacheRoot, logger, cfg.Mode == config.ModeLambda)
	if err != nil {
		logger.Fatal("build sandbox harness", zap.Error(err))
	}
	defer harness.Close(context.Background())

	gw := gateway.New(harness, logger, cfg)

	router := chi.NewRouter()
	router.Handle("/*", gw)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			zap.String("addr", cfg.ListenAddr),
			zap.String("mode", cfg.Mode.String()),
			zap.String("cache_root", cfg.CacheRoot),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
