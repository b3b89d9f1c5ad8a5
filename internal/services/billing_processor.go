package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"housingledger/internal/core"
	"housingledger/internal/ledger"
	"housingledger/internal/log"
	"housingledger/internal/storage"
)

// BillingProcessor charges due recurring bills onto the ledger. Each charge
// carries the idempotency key bill:<client>:<bill>:<period>, so reruns and
// concurrent workers never charge a period twice.
type BillingProcessor struct {
	storage    *storage.SQLiteRepository
	ledger     *ledger.Ledger
	maxRetries int
}

func NewBillingProcessor(storage *storage.SQLiteRepository, l *ledger.Ledger, maxRetries int) *BillingProcessor {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &BillingProcessor{storage: storage, ledger: l, maxRetries: maxRetries}
}

// BillIdempotencyKey names the charge of bill b for period.
func BillIdempotencyKey(b core.RecurringBill, period string) string {
	return fmt.Sprintf("bill:%s:%d:%s", b.ClientID, b.ID, period)
}

// CreateBill stores a new active bill template.
func (p *BillingProcessor) CreateBill(ctx context.Context, b core.RecurringBill) (core.RecurringBill, error) {
	b.ClientID = strings.TrimSpace(b.ClientID)
	b.County = strings.TrimSpace(b.County)
	if err := b.Validate(); err != nil {
		return core.RecurringBill{}, err
	}
	created, err := p.storage.Queries().CreateRecurringBill(ctx, b)
	if err != nil {
		return core.RecurringBill{}, fmt.Errorf("create recurring bill: %w", err)
	}
	log.For(log.ComponentBilling).InfoContext(ctx, "Recurring bill created",
		"bill_id", created.ID,
		log.FieldClientID, created.ClientID,
		log.FieldType, created.Type,
		log.FieldAmountCents, created.Amount.Cents,
		"frequency", created.Every)
	return created, nil
}

// DeactivateBill stops future charges; past charges stay on the ledger.
func (p *BillingProcessor) DeactivateBill(ctx context.Context, id int64) error {
	return p.storage.Queries().DeactivateBill(ctx, id)
}

func (p *BillingProcessor) GetBill(ctx context.Context, id int64) (core.RecurringBill, error) {
	return p.storage.Queries().GetRecurringBill(ctx, id)
}

// ProcessDueBills charges every active bill that is due at now and returns
// how many new charges were stored. A failing bill is logged and skipped.
// Dueness and periods are judged in UTC, the zone execution stamps are
// stored in.
func (p *BillingProcessor) ProcessDueBills(ctx context.Context, now time.Time) (int, error) {
	if p.storage == nil || p.ledger == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}
	now = now.UTC()

	bills, err := p.storage.Queries().ListActiveBills(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to get active bills: %w", err)
	}

	log.For(log.ComponentBilling).InfoContext(ctx, "Processing recurring bills",
		"total_active", len(bills),
		"processing_date", now.Format(time.DateOnly))

	processed, failed := 0, 0
	for _, b := range bills {
		charged, err := p.chargeIfDue(ctx, b, now)
		if err != nil {
			failed++
			log.For(log.ComponentBilling).ErrorContext(ctx, "Failed to charge recurring bill",
				"bill_id", b.ID,
				log.FieldClientID, b.ClientID,
				log.FieldError, err)
			continue
		}
		if charged {
			processed++
		}
	}

	log.For(log.ComponentBilling).InfoContext(ctx, "Recurring bill processing complete",
		"processed", processed,
		"failed", failed,
		"total_checked", len(bills))
	return processed, nil
}

func (p *BillingProcessor) chargeIfDue(ctx context.Context, b core.RecurringBill, now time.Time) (bool, error) {
	checker, err := GetDuenessChecker(b.Every)
	if err != nil {
		return false, err
	}
	if !checker.IsDue(b.LastExecution, now, b.StartDate) {
		return false, nil
	}

	req := ledger.AppendRequest{
		Type:           b.Type,
		Amount:         b.Amount,
		ClientID:       b.ClientID,
		County:         b.County,
		Description:    b.Description,
		IdempotencyKey: BillIdempotencyKey(b, checker.Period(now)),
	}

	var (
		tx       core.Transaction
		replayed bool
	)
	err = ledger.RetryOnConflict(ctx, p.maxRetries, func() error {
		return p.ledger.Atomic(ctx, req.LockKeys(), func(w *ledger.Writer) error {
			var err error
			if tx, replayed, err = w.Append(req); err != nil {
				return err
			}
			return w.Queries().MarkBillExecuted(ctx, b.ID, now)
		})
	})
	if err != nil {
		return false, err
	}

	if replayed {
		log.For(log.ComponentBilling).InfoContext(ctx, "Recurring bill already charged for period",
			"bill_id", b.ID,
			log.FieldTransactionID, tx.ID,
			log.FieldIdempotencyKey, req.IdempotencyKey)
		return false, nil
	}
	log.For(log.ComponentBilling).InfoContext(ctx, "Charged recurring bill",
		"bill_id", b.ID,
		log.FieldTransactionID, tx.ID,
		log.FieldAmountCents, tx.Amount.Cents,
		"frequency", b.Every)
	return true, nil
}
