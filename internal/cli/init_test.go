package cli

import (
	"context"
	"path/filepath"
	"testing"

	"housingledger/internal/core"
	"housingledger/internal/ledger"
	"housingledger/internal/log"
)

func TestBoot(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	t.Setenv("SQLITE_DB_PATH", dbPath)
	t.Setenv("AMQP_URL", "")
	t.Setenv("LOG_FORMAT", "json")

	env, err := Boot(log.ComponentBilling)
	if err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	if env.Config.SQLiteDBPath != dbPath || env.Logger.Component() != log.ComponentBilling {
		t.Fatalf("env = %+v", env)
	}

	tx, _, err := env.Ledger.Append(context.Background(), ledger.AppendRequest{
		Type:     core.RentPayment,
		Amount:   core.Cents(95000),
		ClientID: "c1",
	})
	if err != nil || tx.ID == 0 {
		t.Fatalf("Append() = %+v, %v", tx, err)
	}

	var closed []string
	env.OnClose(func() error { closed = append(closed, "first"); return nil })
	env.OnClose(func() error { closed = append(closed, "second"); return nil })
	env.Close()
	if len(closed) != 2 || closed[0] != "second" {
		t.Fatalf("close order = %v", closed)
	}
	if err := env.Repo.Ping(context.Background()); err == nil {
		t.Fatal("repository should be closed")
	}
}

func TestBootRejectsInvalidConfig(t *testing.T) {
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "ledger.db"))
	t.Setenv("PORT", "not-a-port")

	if _, err := Boot(log.ComponentApp); err == nil {
		t.Fatal("expected configuration error")
	}
}
