package account

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"housingledger/internal/core"
	"housingledger/internal/ledger"
	"housingledger/internal/storage"

	"github.com/shopspring/decimal"
)

func newTestProjector(t *testing.T, now time.Time) (*Projector, *ledger.Ledger) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"), 5*time.Second)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	p := NewProjector(repo)
	p.now = func() time.Time { return now }
	return p, ledger.New(repo, ledger.WithClock(func() time.Time { return now }))
}

var may2024 = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

func TestComputeBalanceOverspent(t *testing.T) {
	p, l := newTestProjector(t, may2024)
	ctx := context.Background()

	if _, err := p.UpsertClient(ctx, core.ClientAccount{ClientID: "c1", MonthlyIncome: core.Cents(80000), ObligationPercent: decimal.NewFromInt(30)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	appends := []ledger.AppendRequest{
		{Type: core.RentPayment, Amount: core.Cents(70000), ClientID: "c1"},
		{Type: core.ApplicationFee, Amount: core.Cents(25000), ClientID: "c1"},
		{Type: core.CountyReimbursement, Amount: core.Cents(40000), ClientID: "c1", County: "Lane"},
		{Type: core.RentPayment, Amount: core.Cents(99900), ClientID: "c2"},
	}
	for _, r := range appends {
		if _, _, err := l.Append(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := p.ComputeBalance(ctx, "c1", core.MonthOf(may2024).Range())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got.TotalWithdrawals != core.Cents(95000) {
		t.Errorf("withdrawals = %s, want 950.00", got.TotalWithdrawals)
	}
	if got.Balance != core.Cents(-15000) {
		t.Errorf("balance = %s, want -150.00", got.Balance)
	}
	if got.TotalDeposits != core.Cents(40000) {
		t.Errorf("deposits = %s, want 400.00 reported separately", got.TotalDeposits)
	}
	if !got.Overspent || got.OverspentReason != OverspentReason {
		t.Errorf("expected overspent flag, got %v %q", got.Overspent, got.OverspentReason)
	}
	if len(got.RecentEntries) != 3 {
		t.Errorf("recent entries = %d, want 3", len(got.RecentEntries))
	}

	again, err := p.ComputeBalance(ctx, "c1", core.MonthOf(may2024).Range())
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !reflect.DeepEqual(got, again) {
		t.Fatalf("projection not idempotent:\n%+v\n%+v", got, again)
	}

	c, err := p.GetClient(ctx, "c1")
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if c.CurrentBalance != core.Cents(-15000) || !c.Overspent {
		t.Fatalf("client view = %s overspent=%v", c.CurrentBalance, c.Overspent)
	}
}

func TestComputeBalanceUnknownClient(t *testing.T) {
	p, _ := newTestProjector(t, may2024)

	got, err := p.ComputeBalance(context.Background(), "ghost", core.DateRange{})
	if err != nil {
		t.Fatalf("unknown client must not error: %v", err)
	}
	if !got.Balance.IsZero() || got.Overspent || len(got.RecentEntries) != 0 {
		t.Fatalf("expected zeroed projection, got %+v", got)
	}
}

func TestComputeBalancePeriodAndRecentLimit(t *testing.T) {
	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	p, _ := newTestProjector(t, now)
	ctx := context.Background()
	l := ledger.New(p.repo, ledger.WithClock(func() time.Time { return now }))

	if _, err := p.UpsertClient(ctx, core.ClientAccount{ClientID: "c1", MonthlyIncome: core.Cents(100000)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	for i := 0; i < 12; i++ {
		now = time.Date(2024, 4, 1+i, 0, 0, 0, 0, time.UTC)
		if _, _, err := l.Append(ctx, ledger.AppendRequest{Type: core.RentPayment, Amount: core.Cents(1000), ClientID: "c1"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	now = time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	if _, _, err := l.Append(ctx, ledger.AppendRequest{Type: core.RentPayment, Amount: core.Cents(50000), ClientID: "c1"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	april, err := p.ComputeBalance(ctx, "c1", core.Month{Year: 2024, Month: time.April}.Range())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if april.Balance != core.Cents(88000) || april.Overspent {
		t.Errorf("april balance = %s overspent=%v", april.Balance, april.Overspent)
	}
	if len(april.RecentEntries) != RecentEntryLimit {
		t.Errorf("recent entries = %d, want %d", len(april.RecentEntries), RecentEntryLimit)
	}
	if !april.RecentEntries[0].CreatedAt.After(april.RecentEntries[1].CreatedAt) {
		t.Error("recent entries must be newest first")
	}
}

func TestComputeBalanceValidation(t *testing.T) {
	p, _ := newTestProjector(t, may2024)
	ctx := context.Background()

	if _, err := p.ComputeBalance(ctx, " ", core.DateRange{}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for empty client, got %v", err)
	}
	bad := core.DateRange{From: may2024, To: may2024.Add(-time.Hour)}
	if _, err := p.ComputeBalance(ctx, "c1", bad); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for inverted range, got %v", err)
	}
	if _, err := p.UpsertClient(ctx, core.ClientAccount{ClientID: "c1", ObligationPercent: decimal.NewFromInt(101)}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for obligation percent, got %v", err)
	}
	if _, err := p.GetClient(ctx, "nobody"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestIsOverspent(t *testing.T) {
	tests := []struct {
		balance core.Money
		want    bool
	}{
		{core.Cents(-15000), true},
		{core.Cents(-1), true},
		{core.Cents(0), false},
		{core.Cents(100), false},
	}
	for _, tt := range tests {
		if got := IsOverspent(tt.balance); got != tt.want {
			t.Errorf("IsOverspent(%s) = %v, want %v", tt.balance, got, tt.want)
		}
	}
}
