package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"housingledger/internal/core"
)

const poolEntryColumns = `id, transaction_id, type, amount_cents, county, client_id, month_year, month_month, created_at`

func scanPoolEntry(row rowScanner) (core.PoolFundEntry, error) {
	var (
		e         core.PoolFundEntry
		typ       string
		client    sql.NullString
		year, mon sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(&e.ID, &e.TransactionID, &typ, &e.Amount.Cents, &e.County, &client, &year, &mon, &createdAt); err != nil {
		return core.PoolFundEntry{}, err
	}
	e.Type = core.PoolEntryType(typ)
	e.ClientID = client.String
	if year.Valid && mon.Valid {
		e.Month = &core.Month{Year: int(year.Int64), Month: time.Month(mon.Int64)}
	}
	e.CreatedAt = fromUnix(createdAt)
	return e, nil
}

// CreatePoolEntry inserts e. The UNIQUE transaction_id constraint makes a
// second link to the same transaction a conflict.
func (q *Queries) CreatePoolEntry(ctx context.Context, e core.PoolFundEntry) (core.PoolFundEntry, error) {
	var year, mon sql.NullInt64
	if e.Month != nil {
		year = sql.NullInt64{Int64: int64(e.Month.Year), Valid: true}
		mon = sql.NullInt64{Int64: int64(e.Month.Month), Valid: true}
	}
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO pool_fund_entries (transaction_id, type, amount_cents, county, client_id, month_year, month_month, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+poolEntryColumns,
		e.TransactionID,
		string(e.Type),
		e.Amount.Cents,
		e.County,
		nullString(e.ClientID),
		year,
		mon,
		toUnix(e.CreatedAt),
	)
	created, err := scanPoolEntry(row)
	if err != nil {
		return core.PoolFundEntry{}, translateError(err, fmt.Sprintf("pool-entry:%d", e.TransactionID))
	}
	return created, nil
}

// GetPoolEntryByTransaction returns core.ErrNotFound when the transaction has
// no linked entry.
func (q *Queries) GetPoolEntryByTransaction(ctx context.Context, transactionID int64) (core.PoolFundEntry, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+poolEntryColumns+` FROM pool_fund_entries WHERE transaction_id = ?`, transactionID)
	e, err := scanPoolEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.PoolFundEntry{}, fmt.Errorf("pool entry for transaction %d: %w", transactionID, core.ErrNotFound)
	}
	return e, err
}

// ListPoolEntries returns entries newest first; empty county lists all.
func (q *Queries) ListPoolEntries(ctx context.Context, county string, r core.DateRange) ([]core.PoolFundEntry, error) {
	query := `SELECT ` + poolEntryColumns + ` FROM pool_fund_entries WHERE 1 = 1`
	var args []interface{}
	if county != "" {
		query += ` AND county = ?`
		args = append(args, county)
	}
	if !r.From.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, toUnix(r.From))
	}
	if !r.To.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, toUnix(r.To))
	}
	query += ` ORDER BY id DESC`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pool entries: %w", err)
	}
	defer rows.Close()

	out := []core.PoolFundEntry{}
	for rows.Next() {
		e, err := scanPoolEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pool entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ApplyPoolEntry folds e into the per-county accumulator.
func (q *Queries) ApplyPoolEntry(ctx context.Context, e core.PoolFundEntry) error {
	var dep, wd int64
	switch e.Type {
	case core.PoolDeposit:
		dep = e.Amount.Cents
	case core.PoolWithdrawal:
		wd = e.Amount.Cents
	default:
		return core.NewValidationError("type", fmt.Sprintf("unknown pool entry type %q", e.Type))
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO pool_balances (county, deposits_cents, withdrawals_cents, entry_count, last_entry_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (county) DO UPDATE SET
			deposits_cents    = deposits_cents + excluded.deposits_cents,
			withdrawals_cents = withdrawals_cents + excluded.withdrawals_cents,
			entry_count       = entry_count + 1,
			last_entry_at     = MAX(last_entry_at, excluded.last_entry_at)`,
		e.County, dep, wd, toUnix(e.CreatedAt))
	if err != nil {
		return translateError(err, "county:"+e.County)
	}
	return nil
}

func summaryFrom(county string, dep, wd, count, last int64) core.PoolSummary {
	return core.PoolSummary{
		County:            county,
		TotalDeposits:     core.Cents(dep),
		TotalWithdrawals:  core.Cents(wd),
		CurrentBalance:    core.Cents(dep - wd),
		TransactionCount:  count,
		LastTransactionAt: fromUnix(last),
	}
}

// PoolAccumulator reads the incrementally maintained totals. Empty county
// sums every county. No rows yields a zeroed summary.
func (q *Queries) PoolAccumulator(ctx context.Context, county string) (core.PoolSummary, error) {
	query := `
		SELECT COALESCE(SUM(deposits_cents), 0), COALESCE(SUM(withdrawals_cents), 0),
		       COALESCE(SUM(entry_count), 0), COALESCE(MAX(last_entry_at), 0)
		FROM pool_balances`
	var args []interface{}
	if county != "" {
		query += ` WHERE county = ?`
		args = append(args, county)
	}
	var dep, wd, count, last int64
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&dep, &wd, &count, &last); err != nil {
		return core.PoolSummary{}, fmt.Errorf("read pool accumulator: %w", err)
	}
	return summaryFrom(county, dep, wd, count, last), nil
}

// ReplayPoolEntries recomputes the totals from the full entry set.
func (q *Queries) ReplayPoolEntries(ctx context.Context, county string, r core.DateRange) (core.PoolSummary, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN type = 'deposit' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'withdrawal' THEN amount_cents ELSE 0 END), 0),
			COUNT(*),
			COALESCE(MAX(created_at), 0)
		FROM pool_fund_entries WHERE 1 = 1`
	var args []interface{}
	if county != "" {
		query += ` AND county = ?`
		args = append(args, county)
	}
	if !r.From.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, toUnix(r.From))
	}
	if !r.To.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, toUnix(r.To))
	}
	var dep, wd, count, last int64
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&dep, &wd, &count, &last); err != nil {
		return core.PoolSummary{}, fmt.Errorf("replay pool entries: %w", err)
	}
	return summaryFrom(county, dep, wd, count, last), nil
}
