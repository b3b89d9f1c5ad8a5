package http

import (
	"fmt"
	"net/http"

	"housingledger/internal/core"
	"housingledger/internal/ledger"
)

type transactionRequest struct {
	Type           string     `json:"type" validate:"required"`
	Amount         core.Money `json:"amount"`
	ClientID       string     `json:"client_id" validate:"max=100"`
	ApplicationID  string     `json:"application_id" validate:"max=100"`
	County         string     `json:"county" validate:"max=100"`
	Description    string     `json:"description"`
	IdempotencyKey string     `json:"idempotency_key" validate:"max=200"`
}

func (s *Server) handleAppendTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	typ, err := core.ParseTransactionType(req.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Pool movements need their linked entry, which only the pool routes write.
	if typ == core.PoolFundDeposit || typ == core.PoolFundWithdrawal {
		writeError(w, r, core.NewValidationError("type",
			fmt.Sprintf("%s is recorded through /v1/pools/{county}/deposits or /withdrawals", typ)))
		return
	}

	tx, replayed, err := s.deps.Ledger.Append(r.Context(), ledger.AppendRequest{
		Type:           typ,
		Amount:         req.Amount,
		ClientID:       req.ClientID,
		ApplicationID:  req.ApplicationID,
		County:         req.County,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, tx)
}

const maxPageSize = 500

type transactionPage struct {
	Transactions []core.Transaction `json:"transactions"`
	// NextAfterID restarts the listing after the last row returned.
	NextAfterID int64 `json:"next_after_id,omitempty"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.TransactionFilter{
		ClientID: q.Get("client_id"),
		County:   q.Get("county"),
	}
	if t := q.Get("type"); t != "" {
		typ, err := core.ParseTransactionType(t)
		if err != nil {
			writeError(w, r, err)
			return
		}
		filter.Type = typ
	}

	var err error
	if filter.Range, err = parseRange(q); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.AfterID, err = parseInt(q, "after_id"); err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := parseInt(q, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	filter.Limit = int(limit)

	txs, err := s.deps.Ledger.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page := transactionPage{Transactions: txs}
	if page.Transactions == nil {
		page.Transactions = []core.Transaction{}
	}
	if filter.Limit > 0 && len(txs) == filter.Limit {
		page.NextAfterID = txs[len(txs)-1].ID
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.deps.Ledger.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}
