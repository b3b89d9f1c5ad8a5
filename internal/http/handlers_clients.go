package http

import (
	"net/http"

	"housingledger/internal/core"

	"github.com/shopspring/decimal"
)

type clientRequest struct {
	MonthlyIncome     core.Money      `json:"monthly_income"`
	CreditLimit       core.Money      `json:"credit_limit"`
	ObligationPercent decimal.Decimal `json:"client_obligation_percent"`
}

func (s *Server) handleUpsertClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.deps.Accounts.UpsertClient(r.Context(), core.ClientAccount{
		ClientID:          r.PathValue("id"),
		MonthlyIncome:     req.MonthlyIncome,
		CreditLimit:       req.CreditLimit,
		ObligationPercent: req.ObligationPercent,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Accounts.GetClient(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleClientBalance projects the balance over ?month= or ?from=&to=.
// Without either it covers the current calendar month.
func (s *Server) handleClientBalance(w http.ResponseWriter, r *http.Request) {
	period, err := parseRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if period == (core.DateRange{}) {
		period = core.MonthOf(s.now()).Range()
	}
	proj, err := s.deps.Accounts.ComputeBalance(r.Context(), r.PathValue("id"), period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}
