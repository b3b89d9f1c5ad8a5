package core

import "time"

// PoolSummary aggregates pool entries for one county, or all of them when
// County is empty.
type PoolSummary struct {
	County            string    `json:"county,omitempty"`
	TotalDeposits     Money     `json:"total_deposits"`
	TotalWithdrawals  Money     `json:"total_withdrawals"`
	CurrentBalance    Money     `json:"current_balance"`
	TransactionCount  int64     `json:"transaction_count"`
	LastTransactionAt time.Time `json:"last_transaction_at,omitempty"`
}

// CountySummary is the audit view of one county's ledger activity.
type CountySummary struct {
	County           string       `json:"county"`
	Period           DateRange    `json:"period"`
	TotalDeposits    Money        `json:"total_deposits"`
	TotalWithdrawals Money        `json:"total_withdrawals"`
	CurrentBalance   Money        `json:"current_balance"`
	TransactionCount int64        `json:"transaction_count"`
	LastTransaction  *Transaction `json:"last_transaction,omitempty"`
	PoolBalance      Money        `json:"pool_balance"`
}
