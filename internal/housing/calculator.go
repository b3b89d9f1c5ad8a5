// Package housing computes monthly pool contributions from a client's
// subsidy, obligation, rent and fees, and keeps each client's running pool
// total in chronological month order.
package housing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"housingledger/internal/core"
	"housingledger/internal/ledger"
	"housingledger/internal/log"
	"housingledger/internal/pool"
	"housingledger/internal/storage"
)

// RecordInput creates one (client, month) record. ElectricityFee and
// RentLateFee default to zero.
type RecordInput struct {
	ClientID         string     `json:"client_id" validate:"required"`
	County           string     `json:"county"`
	Month            core.Month `json:"month"`
	SubsidyReceived  core.Money `json:"subsidy_received"`
	ClientObligation core.Money `json:"client_obligation"`
	RentAmount       core.Money `json:"rent_amount"`
	AdminFee         core.Money `json:"admin_fee"`
	ElectricityFee   core.Money `json:"electricity_fee"`
	RentLateFee      core.Money `json:"rent_late_fee"`
}

// RecordPatch changes only the fields that are set.
type RecordPatch struct {
	County           *string     `json:"county,omitempty"`
	SubsidyReceived  *core.Money `json:"subsidy_received,omitempty"`
	ClientObligation *core.Money `json:"client_obligation,omitempty"`
	RentAmount       *core.Money `json:"rent_amount,omitempty"`
	AdminFee         *core.Money `json:"admin_fee,omitempty"`
	ElectricityFee   *core.Money `json:"electricity_fee,omitempty"`
	RentLateFee      *core.Money `json:"rent_late_fee,omitempty"`
}

func (p RecordPatch) apply(r core.HousingSupportRecord) core.HousingSupportRecord {
	if p.County != nil {
		r.County = strings.TrimSpace(*p.County)
	}
	set := func(dst *core.Money, v *core.Money) {
		if v != nil {
			*dst = *v
		}
	}
	set(&r.SubsidyReceived, p.SubsidyReceived)
	set(&r.ClientObligation, p.ClientObligation)
	set(&r.RentAmount, p.RentAmount)
	set(&r.AdminFee, p.AdminFee)
	set(&r.ElectricityFee, p.ElectricityFee)
	set(&r.RentLateFee, p.RentLateFee)
	return r
}

// RunningTotalQuery selects the records summed by GetRunningTotal. An empty
// ClientID spans every client; a zero AsOf has no upper bound.
type RunningTotalQuery struct {
	ClientID string
	AsOf     core.Month
}

// Contribution is the outcome of posting a record to its county pool.
// Transaction and Entry are nil when nothing was owed.
type Contribution struct {
	Record      core.HousingSupportRecord `json:"record"`
	Delta       core.Money                `json:"delta"`
	Transaction *core.Transaction         `json:"transaction,omitempty"`
	Entry       *core.PoolFundEntry       `json:"entry,omitempty"`
}

type Calculator struct {
	ledger *ledger.Ledger
	pool   *pool.Account
	repo   *storage.SQLiteRepository
}

func NewCalculator(l *ledger.Ledger, p *pool.Account, repo *storage.SQLiteRepository) *Calculator {
	return &Calculator{ledger: l, pool: p, repo: repo}
}

// CreateRecord stores a record with its month total and chains it onto the
// client's running total. A month inserted before existing months shifts
// the running totals of every later month.
func (c *Calculator) CreateRecord(ctx context.Context, in RecordInput) (core.HousingSupportRecord, error) {
	rec := core.HousingSupportRecord{
		ClientID:         strings.TrimSpace(in.ClientID),
		County:           strings.TrimSpace(in.County),
		Month:            in.Month,
		SubsidyReceived:  in.SubsidyReceived,
		ClientObligation: in.ClientObligation,
		RentAmount:       in.RentAmount,
		AdminFee:         in.AdminFee,
		ElectricityFee:   in.ElectricityFee,
		RentLateFee:      in.RentLateFee,
	}
	if err := rec.Validate(); err != nil {
		return core.HousingSupportRecord{}, err
	}
	rec.MonthPoolTotal = rec.ComputeMonthPoolTotal()

	var created core.HousingSupportRecord
	err := c.ledger.Atomic(ctx, []string{ledger.ClientKey(rec.ClientID)}, func(w *ledger.Writer) error {
		q := w.Queries()
		_, err := q.GetHousingRecordByMonth(ctx, rec.ClientID, rec.Month)
		switch {
		case err == nil:
			return core.NewValidationError("month", fmt.Sprintf("client %q already has a record for %s", rec.ClientID, rec.Month))
		case !errors.Is(err, core.ErrNotFound):
			return err
		}

		rec.CreatedAt, rec.UpdatedAt = w.Now(), w.Now()
		stored, err := q.CreateHousingRecord(ctx, rec)
		if err != nil {
			return err
		}
		if err := rewalk(ctx, q, rec.ClientID, rec.Month); err != nil {
			return err
		}
		created, err = q.GetHousingRecord(ctx, stored.ID)
		return err
	})
	if err != nil {
		return core.HousingSupportRecord{}, err
	}

	log.For(log.ComponentHousing).InfoContext(ctx, "Housing support record created",
		"record_id", created.ID,
		log.FieldClientID, created.ClientID,
		"month", created.Month.String(),
		"month_pool_total_cents", created.MonthPoolTotal.Cents,
		"running_pool_total_cents", created.RunningPoolTotal.Cents)
	return created, nil
}

// UpdateRecord merges patch into the stored record, recomputes its month
// total and re-walks the client's running totals from that month forward
// in the same unit of work.
func (c *Calculator) UpdateRecord(ctx context.Context, id int64, patch RecordPatch) (core.HousingSupportRecord, error) {
	current, err := c.repo.Queries().GetHousingRecord(ctx, id)
	if err != nil {
		return core.HousingSupportRecord{}, err
	}

	var updated core.HousingSupportRecord
	err = c.ledger.Atomic(ctx, []string{ledger.ClientKey(current.ClientID)}, func(w *ledger.Writer) error {
		q := w.Queries()
		rec, err := q.GetHousingRecord(ctx, id)
		if err != nil {
			return err
		}

		next := patch.apply(rec)
		if err := next.Validate(); err != nil {
			return err
		}
		if next.County != rec.County && !rec.PostedTotal.IsZero() {
			return core.NewValidationError("county", "cannot change county after contributions were posted")
		}
		next.MonthPoolTotal = next.ComputeMonthPoolTotal()
		if next == rec {
			updated = rec
			return nil
		}

		next.UpdatedAt = w.Now()
		if err := q.UpdateHousingInputs(ctx, next); err != nil {
			return err
		}
		if next.MonthPoolTotal != rec.MonthPoolTotal {
			if err := rewalk(ctx, q, rec.ClientID, rec.Month); err != nil {
				return err
			}
		}
		updated, err = q.GetHousingRecord(ctx, id)
		return err
	})
	if err != nil {
		return core.HousingSupportRecord{}, err
	}

	log.For(log.ComponentHousing).InfoContext(ctx, "Housing support record updated",
		"record_id", updated.ID,
		log.FieldClientID, updated.ClientID,
		"month", updated.Month.String(),
		"month_pool_total_cents", updated.MonthPoolTotal.Cents,
		"running_pool_total_cents", updated.RunningPoolTotal.Cents)
	return updated, nil
}

// rewalk recomputes a client's running totals in month order and persists
// every total from month `from` onward that changed.
func rewalk(ctx context.Context, q *storage.Queries, clientID string, from core.Month) error {
	records, err := q.ListHousingRecords(ctx, clientID)
	if err != nil {
		return err
	}
	var running core.Money
	for _, r := range records {
		running = running.Add(r.MonthPoolTotal)
		if r.Month.Before(from) || r.RunningPoolTotal == running {
			continue
		}
		if err := q.SetRunningTotal(ctx, r.ID, running); err != nil {
			return fmt.Errorf("persist running total for %s: %w", r.Month, err)
		}
	}
	return nil
}

// GetRunningTotal replays month totals in chronological order up to and
// including q.AsOf.
func (c *Calculator) GetRunningTotal(ctx context.Context, query RunningTotalQuery) (core.Money, error) {
	if !query.AsOf.IsZero() {
		if err := query.AsOf.Validate(); err != nil {
			return core.Money{}, err
		}
	}
	return c.repo.Queries().SumMonthPoolTotals(ctx, strings.TrimSpace(query.ClientID), query.AsOf)
}

func (c *Calculator) GetRecord(ctx context.Context, id int64) (core.HousingSupportRecord, error) {
	return c.repo.Queries().GetHousingRecord(ctx, id)
}

// ListRecords returns records in month order; empty clientID lists all.
func (c *Calculator) ListRecords(ctx context.Context, clientID string) ([]core.HousingSupportRecord, error) {
	return c.repo.Queries().ListHousingRecords(ctx, strings.TrimSpace(clientID))
}

// PostContribution moves the part of the record's month total not yet
// reflected in the county pool. A positive difference is deposited, a
// negative one withdrawn; earlier postings are never edited.
func (c *Calculator) PostContribution(ctx context.Context, id int64) (Contribution, error) {
	current, err := c.repo.Queries().GetHousingRecord(ctx, id)
	if err != nil {
		return Contribution{}, err
	}
	if current.County == "" {
		return Contribution{}, core.NewValidationError("county", "required to post a contribution")
	}

	keys := []string{ledger.ClientKey(current.ClientID), ledger.CountyKey(current.County)}
	var out Contribution
	err = c.ledger.Atomic(ctx, keys, func(w *ledger.Writer) error {
		q := w.Queries()
		rec, err := q.GetHousingRecord(ctx, id)
		if err != nil {
			return err
		}
		if rec.County != current.County {
			return &core.ConflictError{Key: ledger.CountyKey(current.County), Err: errors.New("record county changed while posting")}
		}

		delta := rec.MonthPoolTotal.Sub(rec.PostedTotal)
		out = Contribution{Record: rec, Delta: delta}
		if delta.IsZero() {
			return nil
		}

		txType, entryType := core.PoolFundDeposit, core.PoolDeposit
		if delta.IsNegative() {
			txType, entryType = core.PoolFundWithdrawal, core.PoolWithdrawal
		}
		tx, _, err := w.Append(ledger.AppendRequest{
			Type:        txType,
			Amount:      delta.Abs(),
			ClientID:    rec.ClientID,
			County:      rec.County,
			Description: fmt.Sprintf("housing support contribution %s", rec.Month),
		})
		if err != nil {
			return err
		}
		month := rec.Month
		entry, err := c.pool.RecordPoolEntry(w, pool.EntryRequest{
			TransactionID: tx.ID,
			Type:          entryType,
			Amount:        tx.Amount,
			County:        tx.County,
			ClientID:      tx.ClientID,
			Month:         &month,
		})
		if err != nil {
			return err
		}
		if err := q.SetPostedTotal(ctx, rec.ID, rec.MonthPoolTotal); err != nil {
			return err
		}
		rec.PostedTotal = rec.MonthPoolTotal
		out = Contribution{Record: rec, Delta: delta, Transaction: &tx, Entry: &entry}
		return nil
	})
	if err != nil {
		return Contribution{}, err
	}

	if out.Transaction != nil {
		log.For(log.ComponentHousing).InfoContext(ctx, "Housing contribution posted",
			"record_id", id,
			log.FieldTransactionID, out.Transaction.ID,
			"delta_cents", out.Delta.Cents,
			log.FieldCounty, out.Record.County)
	}
	return out, nil
}
