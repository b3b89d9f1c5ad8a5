package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RentPayment         TransactionType = "rent_payment"
	DepositPayment      TransactionType = "deposit_payment"
	ApplicationFee      TransactionType = "application_fee"
	CountyReimbursement TransactionType = "county_reimbursement"
	PoolFundWithdrawal  TransactionType = "pool_fund_withdrawal"
	PoolFundDeposit     TransactionType = "pool_fund_deposit"
)

const (
	PoolDeposit    PoolEntryType = "deposit"
	PoolWithdrawal PoolEntryType = "withdrawal"
)

const (
	Inflow  Direction = "inflow"
	Outflow Direction = "outflow"
)

const (
	Monthly RepetitionTypes = "monthly"
	Yearly  RepetitionTypes = "yearly"
	Weekly  RepetitionTypes = "weekly"
	Daily   RepetitionTypes = "daily"
)

// MaxDescriptionLength bounds free-text descriptions on ledger rows.
const MaxDescriptionLength = 500

type (
	TransactionType string
	PoolEntryType   string
	Direction       string
	RepetitionTypes string

	// Transaction is an immutable ledger event. Corrections are new
	// compensating transactions, never edits.
	Transaction struct {
		ID             int64           `json:"id"`
		Type           TransactionType `json:"type"`
		Amount         Money           `json:"amount"`
		ClientID       string          `json:"client_id,omitempty"`
		ApplicationID  string          `json:"application_id,omitempty"`
		County         string          `json:"county,omitempty"`
		Description    string          `json:"description"`
		IdempotencyKey string          `json:"idempotency_key,omitempty"`
		CreatedAt      time.Time       `json:"created_at"`
	}

	// PoolFundEntry ties one deposit or withdrawal to exactly one Transaction.
	PoolFundEntry struct {
		ID            int64         `json:"id"`
		TransactionID int64         `json:"transaction_id"`
		Type          PoolEntryType `json:"type"`
		Amount        Money         `json:"amount"`
		County        string        `json:"county"`
		ClientID      string        `json:"client_id,omitempty"`
		Month         *Month        `json:"month,omitempty"`
		CreatedAt     time.Time     `json:"created_at"`
	}

	// ClientAccount is per-client state. CurrentBalance and Overspent are
	// derived by the projector and never stored.
	ClientAccount struct {
		ClientID          string          `json:"client_id"`
		MonthlyIncome     Money           `json:"monthly_income"`
		CreditLimit       Money           `json:"credit_limit"`
		ObligationPercent decimal.Decimal `json:"client_obligation_percent"`
		CurrentBalance    Money           `json:"current_balance"`
		Overspent         bool            `json:"overspent"`
		UpdatedAt         time.Time       `json:"updated_at"`
	}

	HousingSupportRecord struct {
		ID               int64     `json:"id"`
		ClientID         string    `json:"client_id"`
		County           string    `json:"county,omitempty"`
		Month            Month     `json:"month"`
		SubsidyReceived  Money     `json:"subsidy_received"`
		ClientObligation Money     `json:"client_obligation"`
		RentAmount       Money     `json:"rent_amount"`
		AdminFee         Money     `json:"admin_fee"`
		ElectricityFee   Money     `json:"electricity_fee"`
		RentLateFee      Money     `json:"rent_late_fee"`
		MonthPoolTotal   Money     `json:"month_pool_total"`
		RunningPoolTotal Money     `json:"running_pool_total"`
		PostedTotal      Money     `json:"posted_total"`
		CreatedAt        time.Time `json:"created_at"`
		UpdatedAt        time.Time `json:"updated_at"`
	}

	RecurringBill struct {
		ID            int64           `json:"id"`
		ClientID      string          `json:"client_id"`
		County        string          `json:"county,omitempty"`
		Type          TransactionType `json:"type"`
		Amount        Money           `json:"amount"`
		Description   string          `json:"description"`
		Every         RepetitionTypes `json:"every"`
		StartDate     time.Time       `json:"start_date"`
		EndDate       time.Time       `json:"end_date,omitempty"`
		LastExecution time.Time       `json:"last_execution,omitempty"`
		Active        bool            `json:"active"`
	}

	// TransactionFilter selects ledger rows. Zero fields do not filter.
	// AfterID restarts a listing below the last id already seen.
	TransactionFilter struct {
		ClientID string
		County   string
		Type     TransactionType
		Range    DateRange
		AfterID  int64
		Limit    int
	}
)

var transactionTypes = []TransactionType{
	RentPayment, DepositPayment, ApplicationFee,
	CountyReimbursement, PoolFundWithdrawal, PoolFundDeposit,
}

// TransactionTypes lists every valid type.
func TransactionTypes() []TransactionType {
	return append([]TransactionType(nil), transactionTypes...)
}

// ParseTransactionType rejects anything outside the closed set.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.TrimSpace(s))
	if !t.Valid() {
		return "", NewValidationError("type", fmt.Sprintf("unknown transaction type %q", s))
	}
	return t, nil
}

func (t TransactionType) Valid() bool {
	for _, v := range transactionTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Direction classifies money coming in for the client or the pool versus
// money spent on their behalf.
func (t TransactionType) Direction() Direction {
	switch t {
	case CountyReimbursement, PoolFundDeposit:
		return Inflow
	default:
		return Outflow
	}
}

// AffectsPool reports whether a county is mandatory for t.
func (t TransactionType) AffectsPool() bool {
	switch t {
	case CountyReimbursement, PoolFundWithdrawal, PoolFundDeposit:
		return true
	}
	return false
}

// ParsePoolEntryType rejects anything but deposit and withdrawal.
func ParsePoolEntryType(s string) (PoolEntryType, error) {
	switch t := PoolEntryType(strings.TrimSpace(s)); t {
	case PoolDeposit, PoolWithdrawal:
		return t, nil
	}
	return "", NewValidationError("type", fmt.Sprintf("unknown pool entry type %q", s))
}

// Accepts reports whether a pool entry of type p may reference a
// transaction of type t.
func (p PoolEntryType) Accepts(t TransactionType) bool {
	switch p {
	case PoolDeposit:
		return t == PoolFundDeposit || t == CountyReimbursement
	case PoolWithdrawal:
		return t == PoolFundWithdrawal
	}
	return false
}

// ParseRepetition rejects unknown frequencies.
func ParseRepetition(s string) (RepetitionTypes, error) {
	switch r := RepetitionTypes(strings.TrimSpace(s)); r {
	case Daily, Weekly, Monthly, Yearly:
		return r, nil
	}
	return "", NewValidationError("every", fmt.Sprintf("invalid repetition type %q", s))
}

// Validate checks everything a ledger append needs before any write.
func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return NewValidationError("type", fmt.Sprintf("unknown transaction type %q", t.Type))
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.Type.AffectsPool() && strings.TrimSpace(t.County) == "" {
		return NewValidationError("county", fmt.Sprintf("required for %s", t.Type))
	}
	if len(t.Description) > MaxDescriptionLength {
		return NewValidationError("description", fmt.Sprintf("too long (max %d characters)", MaxDescriptionLength))
	}
	return nil
}

// Matches reports whether t carries the same payload as o, ignoring the
// server-assigned fields.
func (t Transaction) Matches(o Transaction) bool {
	return t.Type == o.Type &&
		t.Amount == o.Amount &&
		t.ClientID == o.ClientID &&
		t.ApplicationID == o.ApplicationID &&
		t.County == o.County
}

func (c ClientAccount) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return NewValidationError("client_id", "required")
	}
	if c.MonthlyIncome.IsNegative() {
		return NewValidationError("monthly_income", "must not be negative")
	}
	if c.CreditLimit.IsNegative() {
		return NewValidationError("credit_limit", "must not be negative")
	}
	if c.ObligationPercent.IsNegative() || c.ObligationPercent.GreaterThan(decimal.NewFromInt(100)) {
		return NewValidationError("client_obligation_percent", "must be between 0 and 100")
	}
	return nil
}

// ComputeMonthPoolTotal applies
// subsidy + obligation - rent - admin fee - electricity fee - rent late fee.
func (r HousingSupportRecord) ComputeMonthPoolTotal() Money {
	return r.SubsidyReceived.
		Add(r.ClientObligation).
		Sub(r.RentAmount).
		Sub(r.AdminFee).
		Sub(r.ElectricityFee).
		Sub(r.RentLateFee)
}

func (r HousingSupportRecord) Validate() error {
	if strings.TrimSpace(r.ClientID) == "" {
		return NewValidationError("client_id", "required")
	}
	if err := r.Month.Validate(); err != nil {
		return err
	}
	fields := []struct {
		name string
		v    Money
	}{
		{"subsidy_received", r.SubsidyReceived},
		{"client_obligation", r.ClientObligation},
		{"rent_amount", r.RentAmount},
		{"admin_fee", r.AdminFee},
		{"electricity_fee", r.ElectricityFee},
		{"rent_late_fee", r.RentLateFee},
	}
	for _, f := range fields {
		if f.v.IsNegative() {
			return NewValidationError(f.name, "must not be negative")
		}
	}
	return nil
}

func (b RecurringBill) Validate() error {
	if strings.TrimSpace(b.ClientID) == "" {
		return NewValidationError("client_id", "required")
	}
	if b.StartDate.IsZero() {
		return NewValidationError("start_date", "required")
	}
	if !b.EndDate.IsZero() && b.EndDate.Before(b.StartDate) {
		return NewValidationError("end_date", "must not be before start date")
	}
	if _, err := ParseRepetition(string(b.Every)); err != nil {
		return err
	}
	if b.Type.AffectsPool() {
		return NewValidationError("type", fmt.Sprintf("%s cannot be billed to a client", b.Type))
	}
	return Transaction{
		Type:        b.Type,
		Amount:      b.Amount,
		County:      b.County,
		Description: b.Description,
	}.Validate()
}
