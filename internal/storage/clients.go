package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"housingledger/internal/core"

	"github.com/shopspring/decimal"
)

// UpsertClient creates or replaces the stored inputs of a client account.
func (q *Queries) UpsertClient(ctx context.Context, c core.ClientAccount) (core.ClientAccount, error) {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO clients (id, monthly_income_cents, credit_limit_cents, obligation_percent, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			monthly_income_cents = excluded.monthly_income_cents,
			credit_limit_cents   = excluded.credit_limit_cents,
			obligation_percent   = excluded.obligation_percent,
			updated_at           = excluded.updated_at`,
		c.ClientID, c.MonthlyIncome.Cents, c.CreditLimit.Cents, c.ObligationPercent.String(), toUnix(c.UpdatedAt))
	if err != nil {
		return core.ClientAccount{}, translateError(err, "client:"+c.ClientID)
	}
	return q.GetClient(ctx, c.ClientID)
}

// GetClient returns core.ErrNotFound for unknown ids.
func (q *Queries) GetClient(ctx context.Context, id string) (core.ClientAccount, error) {
	var (
		c         core.ClientAccount
		percent   string
		updatedAt int64
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, monthly_income_cents, credit_limit_cents, obligation_percent, updated_at
		FROM clients WHERE id = ?`, id).
		Scan(&c.ClientID, &c.MonthlyIncome.Cents, &c.CreditLimit.Cents, &percent, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ClientAccount{}, fmt.Errorf("client %q: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.ClientAccount{}, fmt.Errorf("get client: %w", err)
	}
	c.ObligationPercent, err = decimal.NewFromString(percent)
	if err != nil {
		return core.ClientAccount{}, fmt.Errorf("client %q obligation percent %q: %w", id, percent, err)
	}
	c.UpdatedAt = fromUnix(updatedAt)
	return c, nil
}
