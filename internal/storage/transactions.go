package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"housingledger/internal/core"
)

const transactionColumns = `id, type, amount_cents, client_id, application_id, county, description, idempotency_key, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t                            core.Transaction
		typ                          string
		client, app, county, idemKey sql.NullString
		createdAt                    int64
	)
	if err := row.Scan(&t.ID, &typ, &t.Amount.Cents, &client, &app, &county, &t.Description, &idemKey, &createdAt); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	t.ClientID = client.String
	t.ApplicationID = app.String
	t.County = county.String
	t.IdempotencyKey = idemKey.String
	t.CreatedAt = fromUnix(createdAt)
	return t, nil
}

// CreateTransaction inserts t and returns it with its assigned id.
func (q *Queries) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO transactions (type, amount_cents, client_id, application_id, county, description, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+transactionColumns,
		string(t.Type),
		t.Amount.Cents,
		nullString(t.ClientID),
		nullString(t.ApplicationID),
		nullString(t.County),
		t.Description,
		nullString(t.IdempotencyKey),
		toUnix(t.CreatedAt),
	)
	created, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, translateError(err, "idem:"+t.IdempotencyKey)
	}
	return created, nil
}

// GetTransaction returns core.ErrNotFound when id does not exist.
func (q *Queries) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return t, err
}

// GetTransactionByIdempotencyKey returns core.ErrNotFound when no row carries key.
func (q *Queries) GetTransactionByIdempotencyKey(ctx context.Context, key string) (core.Transaction, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = ?`, key)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("idempotency key %q: %w", key, core.ErrNotFound)
	}
	return t, err
}

func transactionWhere(f core.TransactionFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.ClientID != "" {
		conds = append(conds, "client_id = ?")
		args = append(args, f.ClientID)
	}
	if f.County != "" {
		conds = append(conds, "county = ?")
		args = append(args, f.County)
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(f.Type))
	}
	if !f.Range.From.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, toUnix(f.Range.From))
	}
	if !f.Range.To.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, toUnix(f.Range.To))
	}
	if f.AfterID > 0 {
		conds = append(conds, "id < ?")
		args = append(args, f.AfterID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListTransactions returns matching rows newest first. Ordering is by id,
// which is assigned monotonically at insert.
func (q *Queries) ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	where, args := transactionWhere(f)
	query := `SELECT ` + transactionColumns + ` FROM transactions` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FlowTotals splits matching transactions by direction.
type FlowTotals struct {
	Inflow  core.Money
	Outflow core.Money
	Count   int64
}

// SumTransactions aggregates matching rows by direction in one pass.
func (q *Queries) SumTransactions(ctx context.Context, f core.TransactionFilter) (FlowTotals, error) {
	where, args := transactionWhere(f)
	var totals FlowTotals
	err := q.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN type IN ('county_reimbursement', 'pool_fund_deposit') THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type IN ('county_reimbursement', 'pool_fund_deposit') THEN 0 ELSE amount_cents END), 0),
			COUNT(*)
		FROM transactions`+where, args...).
		Scan(&totals.Inflow.Cents, &totals.Outflow.Cents, &totals.Count)
	if err != nil {
		return FlowTotals{}, fmt.Errorf("sum transactions: %w", err)
	}
	return totals, nil
}

// ListCounties returns every county that appears on the ledger, sorted.
func (q *Queries) ListCounties(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT DISTINCT county FROM transactions
		WHERE county IS NOT NULL AND county <> ''
		ORDER BY county`)
	if err != nil {
		return nil, fmt.Errorf("list counties: %w", err)
	}
	defer rows.Close()

	counties := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		counties = append(counties, c)
	}
	return counties, rows.Err()
}
