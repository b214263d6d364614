package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/RoGogDBD/metrics-tracker/internal/config"
	"github.com/RoGogDBD/metrics-tracker/internal/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("tracker failed: %v", err)
	}
}

func run(args []string) error {
	cfg, err := config.LoadTrackerConfig(args)
	if err != nil {
		return err
	}

	logger, err := config.Initialize(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	version.LogBuildInfo(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	return a.serve(ctx)
}
