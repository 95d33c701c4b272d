package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cardforge/internal/assets"
	"cardforge/internal/config"
	"cardforge/internal/daemon"
	"cardforge/internal/jobs"
	"cardforge/internal/logging"
	"cardforge/internal/workflow"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, err := config.Load(os.Getenv("CARDFORGE_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	logging.CleanupOldLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays)

	store, err := jobs.Open(cfg.Paths.DataDir, logger)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		os.Exit(1)
	}

	wf := workflow.NewManager(cfg, store, buildModel(cfg), assets.DefaultCard(), logger)

	d, err := daemon.New(cfg, store, logger, wf)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}
	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("cardforged shutting down")
	d.Stop()
}
