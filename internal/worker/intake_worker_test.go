package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"housingledger/internal/amqp"
	"housingledger/internal/core"
	"housingledger/internal/ledger"
	"housingledger/internal/pool"
	"housingledger/internal/services"
	"housingledger/internal/storage"
)

type fakeRecorder struct {
	calls []services.CountyPayment
	err   error
}

func (f *fakeRecorder) RecordCountyPayment(_ context.Context, p services.CountyPayment) (services.IntakeResult, error) {
	f.calls = append(f.calls, p)
	return services.IntakeResult{}, f.err
}

func validMessage() *amqp.CountyPaymentMessage {
	return &amqp.CountyPaymentMessage{
		MessageID:      "m-1",
		IdempotencyKey: "check-881",
		ClientID:       "c1",
		County:         "Lane",
		Amount:         "1200.00",
		AmountDue:      "950.00",
		Month:          "2024-05",
	}
}

func TestHandleCountyPaymentParsesMessage(t *testing.T) {
	rec := &fakeRecorder{}
	w := NewIntakeWorker(rec, nil)

	if err := w.HandleCountyPayment(context.Background(), validMessage()); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("recorder called %d times", len(rec.calls))
	}
	p := rec.calls[0]
	if p.Amount != core.Cents(120000) || p.AmountDue != core.Cents(95000) {
		t.Fatalf("amounts = %s / %s", p.Amount, p.AmountDue)
	}
	if p.Month == nil || *p.Month != (core.Month{Year: 2024, Month: time.May}) {
		t.Fatalf("month = %v", p.Month)
	}
	if p.IdempotencyKey != "check-881" || p.County != "Lane" {
		t.Fatalf("payment = %+v", p)
	}
}

func TestHandleCountyPaymentRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*amqp.CountyPaymentMessage)
	}{
		{"missing key", func(m *amqp.CountyPaymentMessage) { m.IdempotencyKey = "" }},
		{"missing county", func(m *amqp.CountyPaymentMessage) { m.County = "" }},
		{"bad amount", func(m *amqp.CountyPaymentMessage) { m.Amount = "12.345" }},
		{"bad amount due", func(m *amqp.CountyPaymentMessage) { m.AmountDue = "lots" }},
		{"bad month", func(m *amqp.CountyPaymentMessage) { m.Month = "2024-13" }},
		{"short month", func(m *amqp.CountyPaymentMessage) { m.Month = "2024-5" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			w := NewIntakeWorker(rec, nil)
			msg := validMessage()
			tt.mutate(msg)

			err := w.HandleCountyPayment(context.Background(), msg)
			if !amqp.IsPermanent(err) || !errors.Is(err, core.ErrValidation) {
				t.Fatalf("expected permanent validation error, got %v", err)
			}
			if len(rec.calls) != 0 {
				t.Fatal("malformed message reached the ledger")
			}
		})
	}
}

func TestHandleCountyPaymentErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"validation", core.NewValidationError("amount", "must be greater than zero"), true},
		{"consistency", &core.ConsistencyError{Reason: "idempotency key reused"}, true},
		{"conflict", &core.ConflictError{Key: "client:c1", Err: errors.New("database is locked")}, false},
		{"other", errors.New("disk full"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewIntakeWorker(&fakeRecorder{err: tt.err}, nil)
			err := w.HandleCountyPayment(context.Background(), validMessage())
			if err == nil {
				t.Fatal("expected error")
			}
			if got := amqp.IsPermanent(err); got != tt.permanent {
				t.Fatalf("IsPermanent = %v, want %v (%v)", got, tt.permanent, err)
			}
		})
	}
}

func TestIntakeWorkerEndToEnd(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"), 5*time.Second)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	l := ledger.New(repo)
	p := pool.NewAccount(l, repo)
	w := NewIntakeWorker(services.NewIntakeService(l, p, 3), p)
	ctx := context.Background()

	// Redelivery of the same message must not double count.
	for i := 0; i < 2; i++ {
		if err := w.HandleCountyPayment(ctx, validMessage()); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	bal, err := p.GetBalance(ctx, "Lane")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != core.Cents(25000) {
		t.Fatalf("pool balance = %s, want 250.00", bal)
	}
	if err := w.StartupReconcileCheck(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
}
