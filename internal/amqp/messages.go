package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"housingledger/internal/core"

	"github.com/google/uuid"
)

// EventTransactionRecorded names the event published after a commit.
const EventTransactionRecorded = "transaction.recorded"

// TransactionRecordedMessage carries a committed ledger transaction to
// downstream consumers such as reporting.
type TransactionRecordedMessage struct {
	MessageID   string           `json:"message_id"`
	Event       string           `json:"event"`
	Transaction core.Transaction `json:"transaction"`
	Timestamp   time.Time        `json:"timestamp"`
}

func NewTransactionRecordedMessage(t core.Transaction) *TransactionRecordedMessage {
	return &TransactionRecordedMessage{
		MessageID:   uuid.NewString(),
		Event:       EventTransactionRecorded,
		Transaction: t,
		Timestamp:   time.Now().UTC(),
	}
}

func (m *TransactionRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CountyPaymentMessage is one county payment queued for intake. Amounts are
// decimal strings so malformed currency is rejected rather than zeroed.
type CountyPaymentMessage struct {
	MessageID      string    `json:"message_id"`
	IdempotencyKey string    `json:"idempotency_key" validate:"required,max=200"`
	ClientID       string    `json:"client_id" validate:"required,max=100"`
	ApplicationID  string    `json:"application_id,omitempty" validate:"max=100"`
	County         string    `json:"county" validate:"required,max=100"`
	Amount         string    `json:"amount" validate:"required"`
	AmountDue      string    `json:"amount_due" validate:"required"`
	Month          string    `json:"month,omitempty" validate:"omitempty,len=7"`
	Description    string    `json:"description,omitempty" validate:"max=500"`
	Timestamp      time.Time `json:"timestamp"`
}

func CountyPaymentMessageFromJSON(data []byte) (*CountyPaymentMessage, error) {
	var msg CountyPaymentMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth redelivering.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
