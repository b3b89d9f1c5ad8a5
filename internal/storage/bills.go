package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"housingledger/internal/core"
)

const billColumns = `id, client_id, county, type, amount_cents, description, every, start_date, end_date, last_execution_date, active`

func scanBill(row rowScanner) (core.RecurringBill, error) {
	var (
		b             core.RecurringBill
		typ, every    string
		start         int64
		end, lastExec sql.NullInt64
		active        int64
	)
	if err := row.Scan(&b.ID, &b.ClientID, &b.County, &typ, &b.Amount.Cents, &b.Description, &every, &start, &end, &lastExec, &active); err != nil {
		return core.RecurringBill{}, err
	}
	b.Type = core.TransactionType(typ)
	b.Every = core.RepetitionTypes(every)
	b.StartDate = fromUnix(start)
	if end.Valid {
		b.EndDate = fromUnix(end.Int64)
	}
	if lastExec.Valid {
		b.LastExecution = fromUnix(lastExec.Int64)
	}
	b.Active = active != 0
	return b, nil
}

// CreateRecurringBill stores a bill template.
func (q *Queries) CreateRecurringBill(ctx context.Context, b core.RecurringBill) (core.RecurringBill, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO recurring_bills (client_id, county, type, amount_cents, description, every, start_date, end_date, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
		RETURNING `+billColumns,
		b.ClientID, b.County, string(b.Type), b.Amount.Cents, b.Description, string(b.Every),
		toUnix(b.StartDate), nullUnix(b.EndDate))
	created, err := scanBill(row)
	if err != nil {
		return core.RecurringBill{}, translateError(err, "bill:"+b.ClientID)
	}
	return created, nil
}

// GetRecurringBill returns core.ErrNotFound for unknown ids.
func (q *Queries) GetRecurringBill(ctx context.Context, id int64) (core.RecurringBill, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+billColumns+` FROM recurring_bills WHERE id = ?`, id)
	b, err := scanBill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringBill{}, fmt.Errorf("recurring bill %d: %w", id, core.ErrNotFound)
	}
	return b, err
}

// ListActiveBills returns bills that have started and not ended as of now.
func (q *Queries) ListActiveBills(ctx context.Context, now time.Time) ([]core.RecurringBill, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+billColumns+` FROM recurring_bills
		WHERE active = 1 AND start_date <= ? AND (end_date IS NULL OR end_date >= ?)
		ORDER BY id`, toUnix(now), toUnix(now))
	if err != nil {
		return nil, fmt.Errorf("list active bills: %w", err)
	}
	defer rows.Close()

	out := []core.RecurringBill{}
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// MarkBillExecuted stamps the last execution time of a bill.
func (q *Queries) MarkBillExecuted(ctx context.Context, id int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `UPDATE recurring_bills SET last_execution_date = ? WHERE id = ?`, toUnix(at), id)
	if err != nil {
		return translateError(err, fmt.Sprintf("bill:%d", id))
	}
	return nil
}

// DeactivateBill stops a bill from being generated again.
func (q *Queries) DeactivateBill(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `UPDATE recurring_bills SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return translateError(err, fmt.Sprintf("bill:%d", id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recurring bill %d: %w", id, core.ErrNotFound)
	}
	return nil
}
