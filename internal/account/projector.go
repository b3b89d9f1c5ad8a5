// Package account projects a client's spendable balance from the ledger and
// their stated monthly income.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"housingledger/internal/core"
	"housingledger/internal/log"
	"housingledger/internal/storage"
)

// RecentEntryLimit caps Projection.RecentEntries.
const RecentEntryLimit = 10

// OverspentReason is attached to every negative projection.
const OverspentReason = "spending exceeded income before receipt of funds"

// Projection is the derived balance of one client over one period.
// Balance is MonthlyIncome minus outflows; inflows are reported in
// TotalDeposits but never added back.
type Projection struct {
	ClientID         string             `json:"client_id"`
	Period           core.DateRange     `json:"period"`
	MonthlyIncome    core.Money         `json:"monthly_income"`
	Balance          core.Money         `json:"balance"`
	TotalDeposits    core.Money         `json:"total_deposits"`
	TotalWithdrawals core.Money         `json:"total_withdrawals"`
	Overspent        bool               `json:"overspent"`
	OverspentReason  string             `json:"overspent_reason,omitempty"`
	RecentEntries    []core.Transaction `json:"recent_entries"`
}

// IsOverspent reports whether balance is below zero.
func IsOverspent(balance core.Money) bool {
	return balance.IsNegative()
}

type Projector struct {
	repo *storage.SQLiteRepository
	now  func() time.Time
}

func NewProjector(repo *storage.SQLiteRepository) *Projector {
	return &Projector{repo: repo, now: time.Now}
}

// UpsertClient stores the client's income, credit limit and obligation
// percent. Derived fields on the input are ignored.
func (p *Projector) UpsertClient(ctx context.Context, c core.ClientAccount) (core.ClientAccount, error) {
	c.ClientID = strings.TrimSpace(c.ClientID)
	if err := c.Validate(); err != nil {
		return core.ClientAccount{}, err
	}
	c.UpdatedAt = p.now().UTC()

	stored, err := p.repo.Queries().UpsertClient(ctx, c)
	if err != nil {
		return core.ClientAccount{}, fmt.Errorf("upsert client: %w", err)
	}
	log.For(log.ComponentAccount).InfoContext(ctx, "Client account saved",
		log.FieldClientID, stored.ClientID,
		"monthly_income_cents", stored.MonthlyIncome.Cents)
	return p.withCurrentBalance(ctx, stored)
}

// GetClient returns the stored account with CurrentBalance projected over
// the current calendar month.
func (p *Projector) GetClient(ctx context.Context, id string) (core.ClientAccount, error) {
	c, err := p.repo.Queries().GetClient(ctx, strings.TrimSpace(id))
	if err != nil {
		return core.ClientAccount{}, err
	}
	return p.withCurrentBalance(ctx, c)
}

func (p *Projector) withCurrentBalance(ctx context.Context, c core.ClientAccount) (core.ClientAccount, error) {
	proj, err := p.ComputeBalance(ctx, c.ClientID, core.MonthOf(p.now()).Range())
	if err != nil {
		return core.ClientAccount{}, err
	}
	c.CurrentBalance = proj.Balance
	c.Overspent = proj.Overspent
	return c, nil
}

// ComputeBalance derives the client's balance over period from one read
// snapshot. An unknown client has zero income and yields a zeroed
// projection rather than an error.
func (p *Projector) ComputeBalance(ctx context.Context, clientID string, period core.DateRange) (Projection, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return Projection{}, core.NewValidationError("client_id", "required")
	}
	if err := period.Validate(); err != nil {
		return Projection{}, err
	}

	proj := Projection{ClientID: clientID, Period: period, RecentEntries: []core.Transaction{}}
	filter := core.TransactionFilter{ClientID: clientID, Range: period}

	err := p.repo.ReadTx(ctx, func(q *storage.Queries) error {
		c, err := q.GetClient(ctx, clientID)
		switch {
		case err == nil:
			proj.MonthlyIncome = c.MonthlyIncome
		case !errors.Is(err, core.ErrNotFound):
			return err
		}

		totals, err := q.SumTransactions(ctx, filter)
		if err != nil {
			return err
		}
		proj.TotalDeposits = totals.Inflow
		proj.TotalWithdrawals = totals.Outflow

		recent := filter
		recent.Limit = RecentEntryLimit
		proj.RecentEntries, err = q.ListTransactions(ctx, recent)
		return err
	})
	if err != nil {
		return Projection{}, fmt.Errorf("compute balance for %q: %w", clientID, err)
	}

	proj.Balance = proj.MonthlyIncome.Sub(proj.TotalWithdrawals)
	if IsOverspent(proj.Balance) {
		proj.Overspent = true
		proj.OverspentReason = OverspentReason
	}
	return proj, nil
}
