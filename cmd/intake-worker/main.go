package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"housingledger/internal/amqp"
	"housingledger/internal/cli"
	"housingledger/internal/log"
	"housingledger/internal/pool"
	"housingledger/internal/services"
	"housingledger/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	env, err := cli.Boot(log.ComponentIntake)
	if err != nil {
		return err
	}
	defer env.Close()
	cfg, logger := env.Config, env.Logger

	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required for the intake worker")
	}
	intake, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPIntakeQueue)
	if err != nil {
		return fmt.Errorf("connect intake queue: %w", err)
	}
	env.OnClose(intake.Close)

	poolAccount := pool.NewAccount(env.Ledger, env.Repo)
	w := worker.NewIntakeWorker(services.NewIntakeService(env.Ledger, poolAccount, cfg.ConflictMaxRetries), poolAccount)

	ctx, stop := cli.SignalContext()
	defer stop()

	if err := w.StartupReconcileCheck(ctx); err != nil {
		logger.Error("Startup reconcile check failed", "error", err)
	}

	logger.Info("Consuming county payments", "queue", cfg.AMQPIntakeQueue)
	if err := intake.ConsumeCountyPayments(ctx, w.HandleCountyPayment); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consume county payments: %w", err)
	}
	return nil
}
