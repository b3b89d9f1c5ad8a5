// Package pool maintains the county-scoped surplus fund. Every entry is tied
// to exactly one ledger transaction and is written in the same unit of work.
package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"housingledger/internal/core"
	"housingledger/internal/ledger"
	"housingledger/internal/log"
	"housingledger/internal/storage"
)

// EntryRequest links a pool movement to a transaction staged or already
// stored on the ledger.
type EntryRequest struct {
	TransactionID int64
	Type          core.PoolEntryType
	Amount        core.Money
	County        string
	ClientID      string
	Month         *core.Month
}

func (r EntryRequest) validate() error {
	if r.TransactionID <= 0 {
		return core.NewValidationError("transaction_id", "required")
	}
	if _, err := core.ParsePoolEntryType(string(r.Type)); err != nil {
		return err
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.County) == "" {
		return core.NewValidationError("county", "required for pool entries")
	}
	if r.Month != nil {
		return r.Month.Validate()
	}
	return nil
}

// MovementRequest is a direct deposit into or withdrawal from a county pool.
type MovementRequest struct {
	County         string
	ClientID       string
	Amount         core.Money
	Month          *core.Month
	Description    string
	IdempotencyKey string
}

// Movement is a stored transaction with its linked pool entry.
type Movement struct {
	Transaction core.Transaction   `json:"transaction"`
	Entry       core.PoolFundEntry `json:"entry"`
	Replayed    bool               `json:"replayed"`
}

type Account struct {
	ledger *ledger.Ledger
	repo   *storage.SQLiteRepository
}

func NewAccount(l *ledger.Ledger, repo *storage.SQLiteRepository) *Account {
	return &Account{ledger: l, repo: repo}
}

// RecordPoolEntry writes a pool entry inside w's unit of work and folds it
// into the county accumulator. The referenced transaction must exist and
// agree on amount, county and direction. A transaction that already has an
// identical entry yields that entry unchanged.
func (a *Account) RecordPoolEntry(w *ledger.Writer, req EntryRequest) (core.PoolFundEntry, error) {
	req.County = strings.TrimSpace(req.County)
	req.ClientID = strings.TrimSpace(req.ClientID)
	if err := req.validate(); err != nil {
		return core.PoolFundEntry{}, err
	}
	if err := w.Require(ledger.CountyKey(req.County)); err != nil {
		return core.PoolFundEntry{}, err
	}

	ctx, q := w.Context(), w.Queries()

	tx, err := q.GetTransaction(ctx, req.TransactionID)
	if errors.Is(err, core.ErrNotFound) {
		return core.PoolFundEntry{}, &core.ConsistencyError{TransactionID: req.TransactionID, Reason: "referenced transaction does not exist"}
	}
	if err != nil {
		return core.PoolFundEntry{}, fmt.Errorf("load referenced transaction: %w", err)
	}
	if err := checkAgainst(tx, req); err != nil {
		return core.PoolFundEntry{}, err
	}

	existing, err := q.GetPoolEntryByTransaction(ctx, tx.ID)
	switch {
	case err == nil:
		if existing.Type != req.Type || existing.Amount != req.Amount || existing.County != req.County {
			return core.PoolFundEntry{}, &core.ConsistencyError{TransactionID: tx.ID, Reason: "transaction already linked to a different pool entry"}
		}
		return existing, nil
	case !errors.Is(err, core.ErrNotFound):
		return core.PoolFundEntry{}, fmt.Errorf("lookup pool entry: %w", err)
	}

	entry, err := q.CreatePoolEntry(ctx, core.PoolFundEntry{
		TransactionID: tx.ID,
		Type:          req.Type,
		Amount:        req.Amount,
		County:        req.County,
		ClientID:      req.ClientID,
		Month:         req.Month,
		CreatedAt:     w.Now(),
	})
	if err != nil {
		return core.PoolFundEntry{}, fmt.Errorf("create pool entry: %w", err)
	}
	if err := q.ApplyPoolEntry(ctx, entry); err != nil {
		return core.PoolFundEntry{}, fmt.Errorf("apply pool entry: %w", err)
	}

	log.For(log.ComponentPool).InfoContext(ctx, "Pool entry recorded",
		"entry_id", entry.ID,
		log.FieldTransactionID, tx.ID,
		log.FieldType, entry.Type,
		log.FieldAmountCents, entry.Amount.Cents,
		log.FieldCounty, entry.County)
	return entry, nil
}

func checkAgainst(tx core.Transaction, req EntryRequest) error {
	switch {
	case tx.Amount != req.Amount:
		return &core.ConsistencyError{
			TransactionID: tx.ID,
			Reason:        fmt.Sprintf("entry amount %s does not match transaction amount %s", req.Amount, tx.Amount),
		}
	case tx.County != req.County:
		return &core.ConsistencyError{
			TransactionID: tx.ID,
			Reason:        fmt.Sprintf("entry county %q does not match transaction county %q", req.County, tx.County),
		}
	case !req.Type.Accepts(tx.Type):
		return &core.ConsistencyError{
			TransactionID: tx.ID,
			Reason:        fmt.Sprintf("%s entry cannot reference a %s transaction", req.Type, tx.Type),
		}
	}
	return nil
}

// Deposit appends a pool_fund_deposit and its linked entry atomically.
func (a *Account) Deposit(ctx context.Context, req MovementRequest) (Movement, error) {
	return a.move(ctx, core.PoolFundDeposit, core.PoolDeposit, req)
}

// Withdraw appends a pool_fund_withdrawal and its linked entry atomically.
// The pool may go negative; overdraft policy belongs to the caller.
func (a *Account) Withdraw(ctx context.Context, req MovementRequest) (Movement, error) {
	return a.move(ctx, core.PoolFundWithdrawal, core.PoolWithdrawal, req)
}

func (a *Account) move(ctx context.Context, txType core.TransactionType, entryType core.PoolEntryType, req MovementRequest) (Movement, error) {
	if req.Month != nil {
		if err := req.Month.Validate(); err != nil {
			return Movement{}, err
		}
	}
	appendReq := ledger.AppendRequest{
		Type:           txType,
		Amount:         req.Amount,
		ClientID:       req.ClientID,
		County:         req.County,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := appendReq.Validate(); err != nil {
		return Movement{}, err
	}

	var m Movement
	err := a.ledger.Atomic(ctx, appendReq.LockKeys(), func(w *ledger.Writer) error {
		tx, replayed, err := w.Append(appendReq)
		if err != nil {
			return err
		}
		entry, err := a.RecordPoolEntry(w, EntryRequest{
			TransactionID: tx.ID,
			Type:          entryType,
			Amount:        tx.Amount,
			County:        tx.County,
			ClientID:      tx.ClientID,
			Month:         req.Month,
		})
		if err != nil {
			return err
		}
		m = Movement{Transaction: tx, Entry: entry, Replayed: replayed}
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	return m, nil
}

// GetBalance returns deposits minus withdrawals for county, or across every
// county when county is empty.
func (a *Account) GetBalance(ctx context.Context, county string) (core.Money, error) {
	s, err := a.GetSummary(ctx, county)
	if err != nil {
		return core.Money{}, err
	}
	return s.CurrentBalance, nil
}

// GetSummary reads the incrementally maintained accumulator. Counties with
// no entries get a zeroed summary.
func (a *Account) GetSummary(ctx context.Context, county string) (core.PoolSummary, error) {
	return a.repo.Queries().PoolAccumulator(ctx, strings.TrimSpace(county))
}

// SummaryInRange replays the entries created inside r.
func (a *Account) SummaryInRange(ctx context.Context, county string, r core.DateRange) (core.PoolSummary, error) {
	if err := r.Validate(); err != nil {
		return core.PoolSummary{}, err
	}
	return a.repo.Queries().ReplayPoolEntries(ctx, strings.TrimSpace(county), r)
}

// ListEntries returns entries newest first.
func (a *Account) ListEntries(ctx context.Context, county string, r core.DateRange) ([]core.PoolFundEntry, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return a.repo.Queries().ListPoolEntries(ctx, strings.TrimSpace(county), r)
}

// Reconcile replays the full entry set and compares it with the accumulator
// inside one read snapshot. Drift is a ConsistencyError.
func (a *Account) Reconcile(ctx context.Context, county string) (core.PoolSummary, error) {
	county = strings.TrimSpace(county)

	var acc, replay core.PoolSummary
	err := a.repo.ReadTx(ctx, func(q *storage.Queries) error {
		var err error
		if acc, err = q.PoolAccumulator(ctx, county); err != nil {
			return err
		}
		replay, err = q.ReplayPoolEntries(ctx, county, core.DateRange{})
		return err
	})
	if err != nil {
		return core.PoolSummary{}, err
	}

	if acc != replay {
		log.For(log.ComponentPool).ErrorContext(ctx, "Pool accumulator drift detected",
			log.FieldOperation, log.OpReconcile,
			log.FieldCounty, county,
			"accumulator_cents", acc.CurrentBalance.Cents,
			"replay_cents", replay.CurrentBalance.Cents,
			"accumulator_count", acc.TransactionCount,
			"replay_count", replay.TransactionCount)
		return replay, &core.ConsistencyError{
			Reason: fmt.Sprintf("pool accumulator for %q drifted: accumulator balance %s over %d entries, replay %s over %d entries",
				county, acc.CurrentBalance, acc.TransactionCount, replay.CurrentBalance, replay.TransactionCount),
		}
	}
	return replay, nil
}
