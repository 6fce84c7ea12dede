package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"support-agent/internal/app"
	"support-agent/internal/config"
	"support-agent/internal/logger"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{Development: cfg.IsDevelopment(), FilePath: cfg.LogFilePath})
	defer func() { _ = log.Sync() }()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to build application", zap.Error(err))
	}

	log.Info("lambda starting", zap.String("env", cfg.Env))
	lambda.Start(a.Handler.Handle)
}
