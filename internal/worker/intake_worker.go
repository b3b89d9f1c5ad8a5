package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"housingledger/internal/amqp"
	"housingledger/internal/core"
	"housingledger/internal/log"
	"housingledger/internal/pool"
	"housingledger/internal/services"

	"github.com/go-playground/validator/v10"
)

// PaymentRecorder is the intake service as seen by the worker.
type PaymentRecorder interface {
	RecordCountyPayment(ctx context.Context, p services.CountyPayment) (services.IntakeResult, error)
}

// IntakeWorker turns queued county payments into ledger entries.
type IntakeWorker struct {
	intake   PaymentRecorder
	pool     *pool.Account
	validate *validator.Validate
}

func NewIntakeWorker(intake PaymentRecorder, pool *pool.Account) *IntakeWorker {
	return &IntakeWorker{
		intake:   intake,
		pool:     pool,
		validate: validator.New(),
	}
}

// HandleCountyPayment validates and records one message. Malformed input
// and consistency failures are marked permanent so the broker drops them
// instead of redelivering forever.
func (w *IntakeWorker) HandleCountyPayment(ctx context.Context, msg *amqp.CountyPaymentMessage) error {
	log.For(log.ComponentWorker).InfoContext(ctx, "Processing county payment message",
		"message_id", msg.MessageID,
		log.FieldIdempotencyKey, msg.IdempotencyKey,
		log.FieldCounty, msg.County)

	payment, err := w.toPayment(msg)
	if err != nil {
		return amqp.Permanent(err)
	}

	res, err := w.intake.RecordCountyPayment(ctx, payment)
	switch {
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrConsistency):
		return amqp.Permanent(err)
	case err != nil:
		return fmt.Errorf("record county payment: %w", err)
	}

	if res.Replayed {
		log.For(log.ComponentWorker).InfoContext(ctx, "County payment already recorded",
			log.FieldIdempotencyKey, payment.IdempotencyKey)
	}
	return nil
}

func (w *IntakeWorker) toPayment(msg *amqp.CountyPaymentMessage) (services.CountyPayment, error) {
	if err := w.validate.Struct(msg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return services.CountyPayment{}, core.NewValidationError(strings.ToLower(f.Field()), fmt.Sprintf("failed %q check", f.Tag()))
		}
		return services.CountyPayment{}, core.NewValidationError("", err.Error())
	}

	amount, err := core.ParseMoney(msg.Amount)
	if err != nil {
		return services.CountyPayment{}, err
	}
	due, err := core.ParseMoney(msg.AmountDue)
	if err != nil {
		return services.CountyPayment{}, err
	}

	p := services.CountyPayment{
		ClientID:       msg.ClientID,
		ApplicationID:  msg.ApplicationID,
		County:         msg.County,
		Amount:         amount,
		AmountDue:      due,
		Description:    msg.Description,
		IdempotencyKey: msg.IdempotencyKey,
	}
	if msg.Month != "" {
		m, err := core.ParseMonth(msg.Month)
		if err != nil {
			return services.CountyPayment{}, err
		}
		p.Month = &m
	}
	return p, nil
}

// StartupReconcileCheck replays the pool entries and compares them with the
// accumulator before the worker starts taking messages.
func (w *IntakeWorker) StartupReconcileCheck(ctx context.Context) error {
	s, err := w.pool.Reconcile(ctx, "")
	if err != nil {
		return fmt.Errorf("reconcile pool: %w", err)
	}
	log.For(log.ComponentWorker).InfoContext(ctx, "Pool reconciled on startup",
		log.FieldOperation, log.OpReconcile,
		"entries", s.TransactionCount,
		"balance", s.CurrentBalance.String())
	return nil
}
