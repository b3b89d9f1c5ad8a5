package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"housingledger/internal/core"
)

const housingColumns = `id, client_id, county, month_year, month_month,
	subsidy_cents, obligation_cents, rent_cents, admin_fee_cents, electricity_fee_cents, rent_late_fee_cents,
	month_pool_total_cents, running_pool_total_cents, posted_total_cents, created_at, updated_at`

func scanHousingRecord(row rowScanner) (core.HousingSupportRecord, error) {
	var (
		r                    core.HousingSupportRecord
		year, mon            int64
		createdAt, updatedAt int64
	)
	err := row.Scan(&r.ID, &r.ClientID, &r.County, &year, &mon,
		&r.SubsidyReceived.Cents, &r.ClientObligation.Cents, &r.RentAmount.Cents,
		&r.AdminFee.Cents, &r.ElectricityFee.Cents, &r.RentLateFee.Cents,
		&r.MonthPoolTotal.Cents, &r.RunningPoolTotal.Cents, &r.PostedTotal.Cents,
		&createdAt, &updatedAt)
	if err != nil {
		return core.HousingSupportRecord{}, err
	}
	r.Month = core.Month{Year: int(year), Month: time.Month(mon)}
	r.CreatedAt = fromUnix(createdAt)
	r.UpdatedAt = fromUnix(updatedAt)
	return r, nil
}

// CreateHousingRecord inserts r with its derived totals already computed.
func (q *Queries) CreateHousingRecord(ctx context.Context, r core.HousingSupportRecord) (core.HousingSupportRecord, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO housing_support_records (
			client_id, county, month_year, month_month,
			subsidy_cents, obligation_cents, rent_cents, admin_fee_cents, electricity_fee_cents, rent_late_fee_cents,
			month_pool_total_cents, running_pool_total_cents, posted_total_cents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+housingColumns,
		r.ClientID, r.County, r.Month.Year, int(r.Month.Month),
		r.SubsidyReceived.Cents, r.ClientObligation.Cents, r.RentAmount.Cents,
		r.AdminFee.Cents, r.ElectricityFee.Cents, r.RentLateFee.Cents,
		r.MonthPoolTotal.Cents, r.RunningPoolTotal.Cents, r.PostedTotal.Cents,
		toUnix(r.CreatedAt), toUnix(r.UpdatedAt),
	)
	created, err := scanHousingRecord(row)
	if err != nil {
		return core.HousingSupportRecord{}, translateError(err, fmt.Sprintf("housing:%s:%s", r.ClientID, r.Month))
	}
	return created, nil
}

// GetHousingRecord returns core.ErrNotFound for unknown ids.
func (q *Queries) GetHousingRecord(ctx context.Context, id int64) (core.HousingSupportRecord, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+housingColumns+` FROM housing_support_records WHERE id = ?`, id)
	r, err := scanHousingRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.HousingSupportRecord{}, fmt.Errorf("housing support record %d: %w", id, core.ErrNotFound)
	}
	return r, err
}

// GetHousingRecordByMonth returns core.ErrNotFound when the client has no
// record for m.
func (q *Queries) GetHousingRecordByMonth(ctx context.Context, clientID string, m core.Month) (core.HousingSupportRecord, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+housingColumns+` FROM housing_support_records
		WHERE client_id = ? AND month_year = ? AND month_month = ?`, clientID, m.Year, int(m.Month))
	r, err := scanHousingRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.HousingSupportRecord{}, fmt.Errorf("housing support record %s/%s: %w", clientID, m, core.ErrNotFound)
	}
	return r, err
}

// UpdateHousingInputs rewrites the financial inputs and the month total of r.
func (q *Queries) UpdateHousingInputs(ctx context.Context, r core.HousingSupportRecord) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE housing_support_records SET
			county = ?,
			subsidy_cents = ?, obligation_cents = ?, rent_cents = ?,
			admin_fee_cents = ?, electricity_fee_cents = ?, rent_late_fee_cents = ?,
			month_pool_total_cents = ?, updated_at = ?
		WHERE id = ?`,
		r.County,
		r.SubsidyReceived.Cents, r.ClientObligation.Cents, r.RentAmount.Cents,
		r.AdminFee.Cents, r.ElectricityFee.Cents, r.RentLateFee.Cents,
		r.MonthPoolTotal.Cents, toUnix(r.UpdatedAt), r.ID)
	if err != nil {
		return translateError(err, fmt.Sprintf("housing:%d", r.ID))
	}
	return nil
}

// SetRunningTotal persists a re-walked running total.
func (q *Queries) SetRunningTotal(ctx context.Context, id int64, total core.Money) error {
	_, err := q.db.ExecContext(ctx, `UPDATE housing_support_records SET running_pool_total_cents = ? WHERE id = ?`, total.Cents, id)
	if err != nil {
		return translateError(err, fmt.Sprintf("housing:%d", id))
	}
	return nil
}

// SetPostedTotal records how much of the month total has reached the pool.
func (q *Queries) SetPostedTotal(ctx context.Context, id int64, posted core.Money) error {
	_, err := q.db.ExecContext(ctx, `UPDATE housing_support_records SET posted_total_cents = ? WHERE id = ?`, posted.Cents, id)
	if err != nil {
		return translateError(err, fmt.Sprintf("housing:%d", id))
	}
	return nil
}

// ListHousingRecords returns a client's records in chronological month
// order. Empty clientID lists every client, ordered by month then client.
func (q *Queries) ListHousingRecords(ctx context.Context, clientID string) ([]core.HousingSupportRecord, error) {
	query := `SELECT ` + housingColumns + ` FROM housing_support_records`
	var args []interface{}
	if clientID != "" {
		query += ` WHERE client_id = ?`
		args = append(args, clientID)
	}
	query += ` ORDER BY month_year, month_month, client_id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list housing records: %w", err)
	}
	defer rows.Close()

	out := []core.HousingSupportRecord{}
	for rows.Next() {
		r, err := scanHousingRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan housing record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SumMonthPoolTotals replays month totals up to and including asOf. A zero
// asOf means no upper bound; empty clientID means every client.
func (q *Queries) SumMonthPoolTotals(ctx context.Context, clientID string, asOf core.Month) (core.Money, error) {
	query := `SELECT COALESCE(SUM(month_pool_total_cents), 0) FROM housing_support_records WHERE 1 = 1`
	var args []interface{}
	if clientID != "" {
		query += ` AND client_id = ?`
		args = append(args, clientID)
	}
	if !asOf.IsZero() {
		query += ` AND (month_year * 12 + month_month - 1) <= ?`
		args = append(args, asOf.Index())
	}
	var total core.Money
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&total.Cents); err != nil {
		return core.Money{}, fmt.Errorf("sum month pool totals: %w", err)
	}
	return total, nil
}
