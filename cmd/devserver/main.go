// Command devserver runs the chat API as a plain HTTP server for local work.
// With KNOWLEDGE_DIR set, edits to business files invalidate the cache.
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

	"go.uber.org/zap"

	"support-agent/internal/app"
	"support-agent/internal/config"
	"support-agent/internal/logger"
	"support-agent/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{Development: cfg.IsDevelopment(), FilePath: cfg.LogFilePath})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to build application", zap.Error(err))
	}

	if a.Files != nil {
		w, err := repository.NewWatcher(a.Files.Dir(), a.Cache.Clear, log)
		if err != nil {
			log.Warn("file watching disabled", zap.Error(err))
		} else {
			defer func() { _ = w.Close() }()
			go w.Run(ctx)
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout(cfg.Completion.Timeout),
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}

// upstreamCallsPerChat counts the sequential completion-endpoint calls one
// chat request can make: translation, reply and suggestions.
const upstreamCallsPerChat = 3

// writeTimeout leaves room for every upstream call of a chat request to run
// to its own timeout, plus local work.
func writeTimeout(completionTimeout time.Duration) time.Duration {
	return upstreamCallsPerChat*completionTimeout + 10*time.Second
}
