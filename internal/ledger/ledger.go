// Package ledger is the append-only system of record for every money-moving
// event. Derived views (pool balances, client balances, county summaries)
// are computed from what it stores.
package ledger

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

// EventPublisher is told about every newly stored transaction after its
// unit of work commits. Failures are logged, never rolled back.
type EventPublisher interface {
	PublishTransactionRecorded(ctx context.Context, t core.Transaction) error
}

// AppendRequest is what a workflow supplies; id and timestamp are assigned
// by the ledger.
type AppendRequest struct {
	Type           core.TransactionType
	Amount         core.Money
	ClientID       string
	ApplicationID  string
	County         string
	Description    string
	IdempotencyKey string
}

func (r AppendRequest) transaction() core.Transaction {
	return core.Transaction{
		Type:           r.Type,
		Amount:         r.Amount,
		ClientID:       strings.TrimSpace(r.ClientID),
		ApplicationID:  strings.TrimSpace(r.ApplicationID),
		County:         strings.TrimSpace(r.County),
		Description:    strings.TrimSpace(r.Description),
		IdempotencyKey: strings.TrimSpace(r.IdempotencyKey),
	}
}

// Validate rejects the request before any lock or write.
func (r AppendRequest) Validate() error {
	return r.transaction().Validate()
}

// LockKeys names the aggregates an append of r touches.
func (r AppendRequest) LockKeys() []string {
	t := r.transaction()
	keys := []string{ClientKey(t.ClientID), IdempotencyKey(t.IdempotencyKey)}
	if t.Type.AffectsPool() {
		keys = append(keys, CountyKey(t.County))
	}
	return keys
}

type Ledger struct {
	repo   *storage.SQLiteRepository
	locks  *KeyedLocker
	events EventPublisher
	now    func() time.Time
}

type Option func(*Ledger)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithPublisher attaches an event publisher; nil disables publishing.
func WithPublisher(p EventPublisher) Option {
	return func(l *Ledger) { l.events = p }
}

func New(repo *storage.SQLiteRepository, opts ...Option) *Ledger {
	l := &Ledger{
		repo:  repo,
		locks: NewKeyedLocker(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append validates and stores one transaction. With an idempotency key that
// is already on the ledger it returns the stored transaction unchanged and
// replayed is true.
func (l *Ledger) Append(ctx context.Context, req AppendRequest) (t core.Transaction, replayed bool, err error) {
	if err := req.Validate(); err != nil {
		return core.Transaction{}, false, err
	}

	err = l.Atomic(ctx, req.LockKeys(), func(w *Writer) error {
		var err error
		t, replayed, err = w.Append(req)
		return err
	})
	if err != nil {
		return core.Transaction{}, false, err
	}
	return t, replayed, nil
}

// Atomic runs fn as one all-or-nothing unit of work while holding the
// aggregate locks named by keys. Every write fn makes through the Writer
// commits together or not at all.
func (l *Ledger) Atomic(ctx context.Context, keys []string, fn func(w *Writer) error) error {
	unlock := l.locks.Lock(keys...)
	defer unlock()

	var recorded []core.Transaction
	err := l.repo.WithinTx(ctx, func(q *storage.Queries) error {
		w := &Writer{
			ctx:  ctx,
			q:    q,
			now:  l.now().UTC(),
			held: make(map[string]struct{}, len(keys)),
		}
		for _, k := range keys {
			if k != "" {
				w.held[k] = struct{}{}
			}
		}
		if err := fn(w); err != nil {
			return err
		}
		recorded = w.recorded
		return nil
	})
	if err != nil {
		return err
	}

	l.publish(ctx, recorded)
	return nil
}

func (l *Ledger) publish(ctx context.Context, recorded []core.Transaction) {
	if l.events == nil {
		return
	}
	for _, t := range recorded {
		if err := l.events.PublishTransactionRecorded(ctx, t); err != nil {
			log.For(log.ComponentLedger).ErrorContext(ctx, "Failed to publish transaction event",
				log.FieldTransactionID, t.ID,
				log.FieldType, t.Type,
				log.FieldError, err)
		}
	}
}

// Get returns core.ErrNotFound for unknown ids.
func (l *Ledger) Get(ctx context.Context, id int64) (core.Transaction, error) {
	return l.repo.Queries().GetTransaction(ctx, id)
}

// List returns matching transactions newest first. Passing the smallest id
// of a page as AfterID resumes the listing.
func (l *Ledger) List(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, core.NewValidationError("type", fmt.Sprintf("unknown transaction type %q", f.Type))
	}
	if err := f.Range.Validate(); err != nil {
		return nil, err
	}
	if f.Limit < 0 {
		return nil, core.NewValidationError("limit", "must not be negative")
	}
	return l.repo.Queries().ListTransactions(ctx, f)
}

// Writer stages writes inside one unit of work.
type Writer struct {
	ctx      context.Context
	q        *storage.Queries
	now      time.Time
	held     map[string]struct{}
	recorded []core.Transaction
}

// Context is the context of the surrounding unit of work.
func (w *Writer) Context() context.Context { return w.ctx }

// Queries exposes the statements bound to this unit of work for linked
// writes such as pool entries.
func (w *Writer) Queries() *storage.Queries { return w.q }

// Now is the timestamp shared by every row written in this unit.
func (w *Writer) Now() time.Time { return w.now }

// Holds reports whether this unit owns the lock for key.
func (w *Writer) Holds(key string) bool {
	_, ok := w.held[key]
	return ok
}

// Require fails unless every non-empty key is locked by this unit.
func (w *Writer) Require(keys ...string) error {
	for _, k := range keys {
		if k != "" && !w.Holds(k) {
			return fmt.Errorf("ledger: lock %q not held by this unit of work", k)
		}
	}
	return nil
}

// Append stores one transaction in the current unit. replayed is true when
// the idempotency key was already on the ledger.
func (w *Writer) Append(req AppendRequest) (t core.Transaction, replayed bool, err error) {
	candidate := req.transaction()
	if err := candidate.Validate(); err != nil {
		return core.Transaction{}, false, err
	}
	if err := w.Require(req.LockKeys()...); err != nil {
		return core.Transaction{}, false, err
	}

	if candidate.IdempotencyKey != "" {
		existing, err := w.q.GetTransactionByIdempotencyKey(w.ctx, candidate.IdempotencyKey)
		switch {
		case err == nil:
			if !existing.Matches(candidate) {
				return core.Transaction{}, false, &core.ConsistencyError{
					TransactionID: existing.ID,
					Reason:        fmt.Sprintf("idempotency key %q reused with a different payload", candidate.IdempotencyKey),
				}
			}
			log.For(log.ComponentLedger).InfoContext(w.ctx, "Idempotent append replayed",
				log.FieldTransactionID, existing.ID,
				log.FieldIdempotencyKey, existing.IdempotencyKey)
			return existing, true, nil
		case !errors.Is(err, core.ErrNotFound):
			return core.Transaction{}, false, fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	candidate.CreatedAt = w.now
	stored, err := w.q.CreateTransaction(w.ctx, candidate)
	if err != nil {
		return core.Transaction{}, false, fmt.Errorf("append transaction: %w", err)
	}
	w.recorded = append(w.recorded, stored)

	log.For(log.ComponentLedger).InfoContext(w.ctx, "Transaction appended",
		log.FieldOperation, log.OpAppend,
		log.FieldTransactionID, stored.ID,
		log.FieldType, stored.Type,
		log.FieldAmountCents, stored.Amount.Cents,
		log.FieldClientID, stored.ClientID,
		log.FieldCounty, stored.County)
	return stored, false, nil
}
