package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"housingledger/internal/core"
	"housingledger/internal/ledger"
	"housingledger/internal/pool"
	"housingledger/internal/storage"
)

type fixture struct {
	repo    *storage.SQLiteRepository
	ledger  *ledger.Ledger
	pool    *pool.Account
	billing *BillingProcessor
	intake  *IntakeService
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"), 5*time.Second)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	l := ledger.New(repo)
	p := pool.NewAccount(l, repo)
	return fixture{
		repo:    repo,
		ledger:  l,
		pool:    p,
		billing: NewBillingProcessor(repo, l, 3),
		intake:  NewIntakeService(l, p, 3),
	}
}

func TestProcessDueBillsChargesOncePerPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bill, err := f.billing.CreateBill(ctx, core.RecurringBill{
		ClientID:    "c1",
		Type:        core.RentPayment,
		Amount:      core.Cents(95000),
		Description: "monthly rent",
		Every:       core.Monthly,
		StartDate:   at(2024, 1, 1),
	})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}

	steps := []struct {
		now       time.Time
		processed int
	}{
		{at(2024, 1, 1), 1},
		{at(2024, 1, 20), 0},
		{at(2024, 2, 1), 1},
		{at(2024, 2, 2), 0},
	}
	for _, s := range steps {
		n, err := f.billing.ProcessDueBills(ctx, s.now)
		if err != nil {
			t.Fatalf("process %s: %v", s.now.Format(time.DateOnly), err)
		}
		if n != s.processed {
			t.Fatalf("process %s: charged %d, want %d", s.now.Format(time.DateOnly), n, s.processed)
		}
	}

	txs, err := f.ledger.List(ctx, core.TransactionFilter{ClientID: "c1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("stored %d charges, want 2", len(txs))
	}
	if txs[0].IdempotencyKey != BillIdempotencyKey(bill, "2024-02") {
		t.Fatalf("idempotency key = %q", txs[0].IdempotencyKey)
	}

	stored, err := f.billing.GetBill(ctx, bill.ID)
	if err != nil {
		t.Fatalf("get bill: %v", err)
	}
	if !stored.LastExecution.Equal(at(2024, 2, 1)) {
		t.Fatalf("last execution = %v", stored.LastExecution)
	}
}

func TestProcessDueBillsJudgesPeriodsInUTC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.billing.CreateBill(ctx, core.RecurringBill{
		ClientID:  "c1",
		Type:      core.RentPayment,
		Amount:    core.Cents(95000),
		Every:     core.Monthly,
		StartDate: at(2024, 1, 1),
	}); err != nil {
		t.Fatalf("create bill: %v", err)
	}
	if _, err := f.billing.ProcessDueBills(ctx, at(2024, 1, 1)); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// 20:00 on January 31 in Honolulu is already February 1 in UTC.
	honolulu := time.FixedZone("HST", -10*60*60)
	n, err := f.billing.ProcessDueBills(ctx, time.Date(2024, 1, 31, 20, 0, 0, 0, honolulu))
	if err != nil {
		t.Fatalf("local run: %v", err)
	}
	if n != 1 {
		t.Fatalf("charged %d, want the February charge", n)
	}

	txs, err := f.ledger.List(ctx, core.TransactionFilter{ClientID: "c1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 2 || !strings.HasSuffix(txs[0].IdempotencyKey, ":2024-02") {
		t.Fatalf("transactions = %+v", txs)
	}
}

func TestConcurrentBillingRunsChargeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.billing.CreateBill(ctx, core.RecurringBill{
		ClientID:  "c9",
		Type:      core.RentPayment,
		Amount:    core.Cents(80000),
		Every:     core.Monthly,
		StartDate: at(2024, 3, 1),
	}); err != nil {
		t.Fatalf("create bill: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.billing.ProcessDueBills(ctx, at(2024, 3, 5)); err != nil {
				t.Errorf("process: %v", err)
			}
		}()
	}
	wg.Wait()

	txs, err := f.ledger.List(ctx, core.TransactionFilter{ClientID: "c9"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("stored %d charges, want exactly 1", len(txs))
	}
}

func TestDeactivatedBillIsNotCharged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bill, err := f.billing.CreateBill(ctx, core.RecurringBill{
		ClientID:  "c2",
		Type:      core.ApplicationFee,
		Amount:    core.Cents(2500),
		Every:     core.Daily,
		StartDate: at(2024, 1, 1),
	})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	if err := f.billing.DeactivateBill(ctx, bill.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	n, err := f.billing.ProcessDueBills(ctx, at(2024, 1, 2))
	if err != nil || n != 0 {
		t.Fatalf("charged %d err=%v, want nothing", n, err)
	}
	if err := f.billing.DeactivateBill(ctx, 999); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateBillValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		bill core.RecurringBill
	}{
		{"zero amount", core.RecurringBill{ClientID: "c1", Type: core.RentPayment, Every: core.Monthly, StartDate: at(2024, 1, 1)}},
		{"unknown frequency", core.RecurringBill{ClientID: "c1", Type: core.RentPayment, Amount: core.Cents(1), Every: "hourly", StartDate: at(2024, 1, 1)}},
		{"pool type", core.RecurringBill{ClientID: "c1", County: "Lane", Type: core.PoolFundDeposit, Amount: core.Cents(1), Every: core.Monthly, StartDate: at(2024, 1, 1)}},
		{"missing client", core.RecurringBill{Type: core.RentPayment, Amount: core.Cents(1), Every: core.Monthly, StartDate: at(2024, 1, 1)}},
		{"end before start", core.RecurringBill{ClientID: "c1", Type: core.RentPayment, Amount: core.Cents(1), Every: core.Monthly, StartDate: at(2024, 2, 1), EndDate: at(2024, 1, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.billing.CreateBill(ctx, tt.bill); !errors.Is(err, core.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
