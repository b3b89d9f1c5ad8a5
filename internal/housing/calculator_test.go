package housing

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"housingledger/internal/core"
	"housingledger/internal/ledger"
	"housingledger/internal/pool"
	"housingledger/internal/storage"
)

type fixture struct {
	calc   *Calculator
	pool   *pool.Account
	ledger *ledger.Ledger
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
	return fixture{calc: NewCalculator(l, p, repo), pool: p, ledger: l}
}

func month(y int, m time.Month) core.Month { return core.Month{Year: y, Month: m} }

func money(cents int64) *core.Money {
	m := core.Cents(cents)
	return &m
}

// input yields the given month total: subsidy 1000, obligation 300, rent
// adjusted so the total lands on cents.
func input(client string, m core.Month, totalCents int64) RecordInput {
	return RecordInput{
		ClientID:         client,
		County:           "Lane",
		Month:            m,
		SubsidyReceived:  core.Cents(100000),
		ClientObligation: core.Cents(30000),
		RentAmount:       core.Cents(130000 - 5000 - totalCents),
		AdminFee:         core.Cents(5000),
	}
}

func TestCreateRecordComputesMonthTotal(t *testing.T) {
	f := newFixture(t)

	rec, err := f.calc.CreateRecord(context.Background(), RecordInput{
		ClientID:         "c1",
		County:           "Lane",
		Month:            month(2024, time.January),
		SubsidyReceived:  core.Cents(100000),
		ClientObligation: core.Cents(30000),
		RentAmount:       core.Cents(110000),
		AdminFee:         core.Cents(5000),
		ElectricityFee:   core.Cents(2000),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.MonthPoolTotal != core.Cents(13000) {
		t.Fatalf("month pool total = %s, want 130.00", rec.MonthPoolTotal)
	}
	if rec.RunningPoolTotal != core.Cents(13000) {
		t.Fatalf("running total = %s, want 130.00", rec.RunningPoolTotal)
	}
	if rec.RentLateFee != core.Cents(0) {
		t.Fatalf("rent late fee should default to zero, got %s", rec.RentLateFee)
	}
}

func TestRunningTotalChainsChronologically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	jan, err := f.calc.CreateRecord(ctx, input("c1", month(2024, time.January), 13000))
	if err != nil {
		t.Fatalf("create jan: %v", err)
	}
	feb, err := f.calc.CreateRecord(ctx, input("c1", month(2024, time.February), -5000))
	if err != nil {
		t.Fatalf("create feb: %v", err)
	}
	if feb.RunningPoolTotal != core.Cents(8000) {
		t.Fatalf("feb running total = %s, want 80.00", feb.RunningPoolTotal)
	}

	// Another client never contributes to c1's chain.
	if _, err := f.calc.CreateRecord(ctx, input("c2", month(2024, time.January), 99900)); err != nil {
		t.Fatalf("create c2: %v", err)
	}

	// Inserting December afterwards is still ordered before January.
	dec, err := f.calc.CreateRecord(ctx, input("c1", month(2023, time.December), 1000))
	if err != nil {
		t.Fatalf("create dec: %v", err)
	}
	if dec.RunningPoolTotal != core.Cents(1000) {
		t.Fatalf("dec running total = %s, want 10.00", dec.RunningPoolTotal)
	}

	want := map[int64]int64{dec.ID: 1000, jan.ID: 14000, feb.ID: 9000}
	for id, cents := range want {
		r, err := f.calc.GetRecord(ctx, id)
		if err != nil {
			t.Fatalf("get %d: %v", id, err)
		}
		if r.RunningPoolTotal != core.Cents(cents) {
			t.Errorf("%s running total = %s, want %s", r.Month, r.RunningPoolTotal, core.Cents(cents))
		}
	}

	records, err := f.calc.ListRecords(ctx, "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 || records[0].ID != dec.ID || records[2].ID != feb.ID {
		t.Fatalf("records not in month order: %+v", records)
	}
}

func TestUpdateRecordCascadesRunningTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	jan, _ := f.calc.CreateRecord(ctx, input("c1", month(2024, time.January), 13000))
	feb, _ := f.calc.CreateRecord(ctx, input("c1", month(2024, time.February), -5000))
	mar, err := f.calc.CreateRecord(ctx, input("c1", month(2024, time.March), 2000))
	if err != nil {
		t.Fatalf("create mar: %v", err)
	}

	// A 30.00 late fee added to January lowers every later running total.
	updated, err := f.calc.UpdateRecord(ctx, jan.ID, RecordPatch{RentLateFee: money(3000)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.MonthPoolTotal != core.Cents(10000) {
		t.Fatalf("jan month total = %s, want 100.00", updated.MonthPoolTotal)
	}
	if updated.SubsidyReceived != jan.SubsidyReceived || updated.RentAmount != jan.RentAmount {
		t.Fatal("unspecified fields must keep their stored values")
	}

	for id, cents := range map[int64]int64{jan.ID: 10000, feb.ID: 5000, mar.ID: 7000} {
		r, _ := f.calc.GetRecord(ctx, id)
		if r.RunningPoolTotal != core.Cents(cents) {
			t.Errorf("%s running total = %s, want %s", r.Month, r.RunningPoolTotal, core.Cents(cents))
		}
	}

	total, err := f.calc.GetRunningTotal(ctx, RunningTotalQuery{ClientID: "c1", AsOf: month(2024, time.February)})
	if err != nil {
		t.Fatalf("running total: %v", err)
	}
	if total != core.Cents(5000) {
		t.Fatalf("replayed running total = %s, want 50.00", total)
	}
}

func TestGetRunningTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, in := range []RecordInput{
		input("c1", month(2024, time.January), 13000),
		input("c1", month(2024, time.February), -5000),
		input("c2", month(2024, time.February), 2500),
	} {
		if _, err := f.calc.CreateRecord(ctx, in); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	tests := []struct {
		name  string
		query RunningTotalQuery
		want  int64
	}{
		{"client through january", RunningTotalQuery{ClientID: "c1", AsOf: month(2024, time.January)}, 13000},
		{"client through february", RunningTotalQuery{ClientID: "c1", AsOf: month(2024, time.February)}, 8000},
		{"every client", RunningTotalQuery{}, 10500},
		{"before any record", RunningTotalQuery{AsOf: month(2023, time.June)}, 0},
		{"unknown client", RunningTotalQuery{ClientID: "nobody"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.calc.GetRunningTotal(ctx, tt.query)
			if err != nil {
				t.Fatalf("running total: %v", err)
			}
			if got != core.Cents(tt.want) {
				t.Fatalf("got %s, want %s", got, core.Cents(tt.want))
			}
		})
	}

	if _, err := f.calc.GetRunningTotal(ctx, RunningTotalQuery{AsOf: core.Month{Year: 2024, Month: 13}}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for bad month, got %v", err)
	}
}

func TestCreateRecordValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.calc.CreateRecord(ctx, input("c1", month(2024, time.January), 100)); err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name string
		in   RecordInput
	}{
		{"duplicate month", input("c1", month(2024, time.January), 100)},
		{"missing client", input("", month(2024, time.January), 100)},
		{"missing month", input("c3", core.Month{}, 100)},
		{"negative fee", RecordInput{ClientID: "c3", Month: month(2024, time.May), AdminFee: core.Cents(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.calc.CreateRecord(ctx, tt.in); !errors.Is(err, core.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestPostContributionPostsDeltas(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.calc.CreateRecord(ctx, input("c1", month(2024, time.January), 13000))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := f.calc.PostContribution(ctx, rec.ID)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if first.Transaction == nil || first.Transaction.Type != core.PoolFundDeposit || first.Transaction.Amount != core.Cents(13000) {
		t.Fatalf("unexpected first posting: %+v", first)
	}
	if first.Entry == nil || first.Entry.Month == nil || *first.Entry.Month != rec.Month {
		t.Fatalf("entry must carry the month key: %+v", first.Entry)
	}

	again, err := f.calc.PostContribution(ctx, rec.ID)
	if err != nil {
		t.Fatalf("repost: %v", err)
	}
	if again.Transaction != nil || !again.Delta.IsZero() {
		t.Fatalf("reposting an unchanged record must be a no-op: %+v", again)
	}

	// Correction lowers the total by 50.00: a compensating withdrawal.
	if _, err := f.calc.UpdateRecord(ctx, rec.ID, RecordPatch{ElectricityFee: money(5000)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	corr, err := f.calc.PostContribution(ctx, rec.ID)
	if err != nil {
		t.Fatalf("post correction: %v", err)
	}
	if corr.Transaction == nil || corr.Transaction.Type != core.PoolFundWithdrawal || corr.Transaction.Amount != core.Cents(5000) {
		t.Fatalf("unexpected correction: %+v", corr)
	}

	bal, err := f.pool.GetBalance(ctx, "Lane")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != core.Cents(8000) {
		t.Fatalf("pool balance = %s, want 80.00", bal)
	}
	if _, err := f.pool.Reconcile(ctx, "Lane"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if _, err := f.calc.UpdateRecord(ctx, rec.ID, RecordPatch{County: strPtr("Marion")}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected county change to be rejected after posting, got %v", err)
	}
}

func TestPostContributionRequiresCounty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := input("c1", month(2024, time.January), 100)
	in.County = ""
	rec, err := f.calc.CreateRecord(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.calc.PostContribution(ctx, rec.ID); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.calc.PostContribution(ctx, 4242); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func strPtr(s string) *string { return &s }
