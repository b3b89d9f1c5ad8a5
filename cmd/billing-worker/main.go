package main

import (
	"fmt"
	"os"
	"time"

	"housingledger/internal/cli"
	"housingledger/internal/log"
	"housingledger/internal/services"

	"github.com/robfig/cron/v3"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	env, err := cli.Boot(log.ComponentBilling)
	if err != nil {
		return err
	}
	defer env.Close()
	cfg, logger := env.Config, env.Logger

	processor := services.NewBillingProcessor(env.Repo, env.Ledger, cfg.ConflictMaxRetries)

	ctx, stop := cli.SignalContext()
	defer stop()

	runOnce := func() {
		count, err := processor.ProcessDueBills(ctx, time.Now().UTC())
		if err != nil {
			logger.Error("Billing run failed", "error", err, "charges_posted", count)
			return
		}
		logger.Info("Billing run complete", "charges_posted", count)
	}

	// Catch up on anything that came due while the worker was down.
	runOnce()

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := scheduler.AddFunc(cfg.BillingSchedule, runOnce); err != nil {
		return fmt.Errorf("schedule billing %q: %w", cfg.BillingSchedule, err)
	}
	scheduler.Start()
	logger.Info("Billing scheduled", "schedule", cfg.BillingSchedule)

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	select {
	case <-scheduler.Stop().Done():
	case <-time.After(30 * time.Second):
		logger.Warn("Shutdown timeout reached, abandoning billing run")
	}
	return nil
}
