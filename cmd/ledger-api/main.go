package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"housingledger/internal/account"
	"housingledger/internal/cli"
	"housingledger/internal/housing"
	apphttp "housingledger/internal/http"
	"housingledger/internal/log"
	"housingledger/internal/pool"
	"housingledger/internal/services"
	"housingledger/internal/summary"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	env, err := cli.Boot(log.ComponentApp)
	if err != nil {
		return err
	}
	defer env.Close()
	cfg, logger := env.Config, env.Logger

	poolAccount := pool.NewAccount(env.Ledger, env.Repo)
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:    env.Ledger,
		Pool:      poolAccount,
		Accounts:  account.NewProjector(env.Repo),
		Housing:   housing.NewCalculator(env.Ledger, poolAccount, env.Repo),
		Summaries: summary.NewSummarizer(env.Repo, cfg.SummaryConcurrency),
		Billing:   services.NewBillingProcessor(env.Repo, env.Ledger, cfg.ConflictMaxRetries),
		Intake:    services.NewIntakeService(env.Ledger, poolAccount, cfg.ConflictMaxRetries),
		Ready:     env.Repo.Ping,
	}, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		SummaryCacheTTL:    cfg.SummaryCacheTTL,
	})

	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, stop := cli.SignalContext()
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ledger-api", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve on port %s: %w", cfg.Port, err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	return nil
}
