package http

import (
	"context"
	"net/http"

	"housingledger/internal/core"
	"housingledger/internal/pool"
)

type movementRequest struct {
	ClientID       string      `json:"client_id" validate:"max=100"`
	Amount         core.Money  `json:"amount"`
	Month          *core.Month `json:"month"`
	Description    string      `json:"description"`
	IdempotencyKey string      `json:"idempotency_key" validate:"max=200"`
}

func (s *Server) handlePoolDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleMovement(w, r, s.deps.Pool.Deposit)
}

func (s *Server) handlePoolWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleMovement(w, r, s.deps.Pool.Withdraw)
}

func (s *Server) handleMovement(w http.ResponseWriter, r *http.Request, move func(context.Context, pool.MovementRequest) (pool.Movement, error)) {
	county, err := pathCounty(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req movementRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	m, err := move(r.Context(), pool.MovementRequest{
		County:         county,
		ClientID:       req.ClientID,
		Amount:         req.Amount,
		Month:          req.Month,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if m.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, m)
}

type balanceResponse struct {
	County  string     `json:"county"`
	Balance core.Money `json:"balance"`
}

func (s *Server) handlePoolBalance(w http.ResponseWriter, r *http.Request) {
	county, err := pathCounty(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	bal, err := s.deps.Pool.GetBalance(r.Context(), county)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{County: county, Balance: bal})
}

func (s *Server) handlePoolSummary(w http.ResponseWriter, r *http.Request) {
	county, err := pathCounty(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.poolSummary(w, r, county)
}

// handlePoolSummaryAll aggregates every county's pool.
func (s *Server) handlePoolSummaryAll(w http.ResponseWriter, r *http.Request) {
	s.poolSummary(w, r, "")
}

func (s *Server) poolSummary(w http.ResponseWriter, r *http.Request, county string) {
	period, err := parseRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var sum core.PoolSummary
	if period == (core.DateRange{}) {
		sum, err = s.deps.Pool.GetSummary(r.Context(), county)
	} else {
		sum, err = s.deps.Pool.SummaryInRange(r.Context(), county, period)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handlePoolEntries(w http.ResponseWriter, r *http.Request) {
	county, err := pathCounty(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	period, err := parseRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := s.deps.Pool.ListEntries(r.Context(), county, period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.PoolFundEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"county": county, "entries": entries})
}

func (s *Server) handlePoolReconcile(w http.ResponseWriter, r *http.Request) {
	county, err := pathCounty(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := s.deps.Pool.Reconcile(r.Context(), county)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
