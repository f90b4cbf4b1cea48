package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"paytx/application/batch"
	"paytx/cmd"
	"paytx/config"
	"paytx/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("Worker startup failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		once       string
	)
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&once, "once", "", "Run the named job once and exit")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(&cfg.Log, cfg.App.Env); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := cmd.NewBuilder(cfg).BuildComponents(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("Component shutdown failed", zap.Error(err))
		}
	}()

	if once != "" {
		report, err := c.Orchestrator.RunJob(ctx, once)
		if report != nil {
			logger.Info("Job run finished",
				zap.String("job", once),
				zap.Bool("skipped", report.Skipped),
				zap.Int("submitted", report.Submitted),
				zap.Int("success", report.Success),
				zap.Int("failure", report.Failure),
				zap.Int("idempotent", report.Idempotent))
		}
		return err
	}

	var schedules []batch.Schedule
	if cfg.Batch.Pay.Enabled {
		schedules = append(schedules, batch.Schedule{Job: batch.JobBatchPay, Interval: cfg.Batch.Pay.Interval})
	}
	if cfg.Batch.Notify.Enabled {
		schedules = append(schedules, batch.Schedule{Job: batch.JobBatchNotify, Interval: cfg.Batch.Notify.Interval})
	}
	if len(schedules) == 0 {
		logger.Info("No batch job is enabled by config; exiting")
		return nil
	}

	scheduler, err := batch.NewScheduler(c.Orchestrator, schedules...)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	logger.Info("Batch worker started", zap.Int("schedules", len(schedules)))
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("batch worker exited with error: %w", err)
	}
	logger.Info("Batch worker stopped")
	return nil
}
