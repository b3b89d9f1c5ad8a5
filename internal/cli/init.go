// Package cli holds the startup steps shared by ledger-api, billing-worker
// and intake-worker.
package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"housingledger/internal/amqp"
	"housingledger/internal/config"
	"housingledger/internal/ledger"
	"housingledger/internal/log"
	"housingledger/internal/storage"

	"github.com/joho/godotenv"
)

// Env is what every binary has once startup succeeds. Close releases it.
type Env struct {
	Config *config.Config
	Logger *log.Logger
	Repo   *storage.SQLiteRepository
	Ledger *ledger.Ledger

	closers []func() error
}

// Boot loads .env and the environment, installs the default logger for
// component, opens the database and builds the ledger. When AMQP is
// configured, committed transactions are published to the events queue;
// a broker that cannot be reached only disables events.
func Boot(component string) (*Env, error) {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger(component)
	log.SetDefault(logger)

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, cfg.SQLiteBusyTimeout)
	if err != nil {
		return nil, fmt.Errorf("open ledger database %s: %w", cfg.SQLiteDBPath, err)
	}
	env := &Env{Config: cfg, Logger: logger, Repo: repo}
	env.closers = append(env.closers, repo.Close)

	var opts []ledger.Option
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled, transaction events will not be published")
	} else if events, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPEventsQueue); err != nil {
		logger.Warn("Failed to initialize AMQP client, transaction events disabled", "error", err)
	} else {
		env.closers = append(env.closers, events.Close)
		opts = append(opts, ledger.WithPublisher(events))
		logger.Info("Publishing transaction events", "queue", cfg.AMQPEventsQueue)
	}
	env.Ledger = ledger.New(repo, opts...)

	logger.Info("Started", log.FieldOperation, log.OpStartup, "db", cfg.SQLiteDBPath)
	return env, nil
}

// OnClose registers fn to run, before earlier registrations, on Close.
func (e *Env) OnClose(fn func() error) {
	e.closers = append(e.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (e *Env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.Logger.Error("Close failed", "error", err)
		}
	}
	e.closers = nil
	e.Logger.Info("Stopped", log.FieldOperation, log.OpShutdown)
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
