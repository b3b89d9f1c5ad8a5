package services

import (
	"context"
	"fmt"
	"strings"

	"housingledger/internal/core"
	"housingledger/internal/ledger"
	"housingledger/internal/log"
	"housingledger/internal/pool"
)

// CountyPayment is one payment received from a county agency on behalf of
// a client. AmountDue is what the client currently owes; anything above it
// is surplus for the county pool.
type CountyPayment struct {
	ClientID       string
	ApplicationID  string
	County         string
	Amount         core.Money
	AmountDue      core.Money
	Month          *core.Month
	Description    string
	IdempotencyKey string
}

func (p CountyPayment) validate() error {
	if strings.TrimSpace(p.IdempotencyKey) == "" {
		return core.NewValidationError("idempotency_key", "required for county payments")
	}
	if strings.TrimSpace(p.ClientID) == "" {
		return core.NewValidationError("client_id", "required")
	}
	if p.AmountDue.IsNegative() {
		return core.NewValidationError("amount_due", "must not be negative")
	}
	if p.Month != nil {
		if err := p.Month.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IntakeResult holds what one county payment produced. Dues is nil when the
// client owed nothing; Surplus and SurplusEntry are nil when nothing was
// left over.
type IntakeResult struct {
	Dues         *core.Transaction   `json:"dues,omitempty"`
	Surplus      *core.Transaction   `json:"surplus,omitempty"`
	SurplusEntry *core.PoolFundEntry `json:"surplus_entry,omitempty"`
	Replayed     bool                `json:"replayed"`
}

type IntakeService struct {
	ledger     *ledger.Ledger
	pool       *pool.Account
	maxRetries int
}

func NewIntakeService(l *ledger.Ledger, p *pool.Account, maxRetries int) *IntakeService {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &IntakeService{ledger: l, pool: p, maxRetries: maxRetries}
}

// RecordCountyPayment records the payment as county reimbursements in one
// unit of work: the part covering the client's dues, and the surplus linked
// to a deposit entry in the county pool. Retrying with the same idempotency
// key returns the stored result.
func (s *IntakeService) RecordCountyPayment(ctx context.Context, p CountyPayment) (IntakeResult, error) {
	if err := p.validate(); err != nil {
		return IntakeResult{}, err
	}

	key := strings.TrimSpace(p.IdempotencyKey)
	description := strings.TrimSpace(p.Description)
	if description == "" {
		description = "county reimbursement"
	}

	base := ledger.AppendRequest{
		Type:          core.CountyReimbursement,
		Amount:        p.Amount,
		ClientID:      p.ClientID,
		ApplicationID: p.ApplicationID,
		County:        p.County,
		Description:   description,
	}
	if err := base.Validate(); err != nil {
		return IntakeResult{}, err
	}

	type part struct {
		req    ledger.AppendRequest
		toPool bool
	}
	dues, surplus := split(p.Amount, p.AmountDue)
	var parts []part
	if dues.IsPositive() {
		r := base
		r.Amount = dues
		r.IdempotencyKey = key
		parts = append(parts, part{req: r})
	}
	if surplus.IsPositive() {
		r := base
		r.Amount = surplus
		r.Description = description + " (surplus)"
		r.IdempotencyKey = key + ":surplus"
		parts = append(parts, part{req: r, toPool: true})
	}

	var keys []string
	for _, pt := range parts {
		keys = append(keys, pt.req.LockKeys()...)
	}

	var result IntakeResult
	err := ledger.RetryOnConflict(ctx, s.maxRetries, func() error {
		result = IntakeResult{}
		return s.ledger.Atomic(ctx, keys, func(w *ledger.Writer) error {
			for _, pt := range parts {
				tx, replayed, err := w.Append(pt.req)
				if err != nil {
					return err
				}
				result.Replayed = result.Replayed || replayed

				if !pt.toPool {
					result.Dues = &tx
					continue
				}
				entry, err := s.pool.RecordPoolEntry(w, pool.EntryRequest{
					TransactionID: tx.ID,
					Type:          core.PoolDeposit,
					Amount:        tx.Amount,
					County:        tx.County,
					ClientID:      tx.ClientID,
					Month:         p.Month,
				})
				if err != nil {
					return err
				}
				result.Surplus = &tx
				result.SurplusEntry = &entry
			}
			return nil
		})
	})
	if err != nil {
		return IntakeResult{}, fmt.Errorf("record county payment: %w", err)
	}

	log.For(log.ComponentIntake).InfoContext(ctx, "County payment recorded",
		log.FieldClientID, p.ClientID,
		log.FieldCounty, p.County,
		log.FieldAmountCents, p.Amount.Cents,
		"dues_cents", dues.Cents,
		"surplus_cents", surplus.Cents,
		log.FieldIdempotencyKey, key,
		"replayed", result.Replayed)
	return result, nil
}

// split divides a payment into the part covering dues and the surplus.
func split(amount, due core.Money) (dues, surplus core.Money) {
	if amount.Cents <= due.Cents {
		return amount, core.Money{}
	}
	return due, amount.Sub(due)
}
