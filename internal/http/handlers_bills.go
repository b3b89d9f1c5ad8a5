package http

import (
	"net/http"

	"housingledger/internal/core"
)

type billRequest struct {
	ClientID    string     `json:"client_id" validate:"required,max=100"`
	County      string     `json:"county" validate:"max=100"`
	Type        string     `json:"type" validate:"required"`
	Amount      core.Money `json:"amount"`
	Description string     `json:"description"`
	Every       string     `json:"every" validate:"required,oneof=daily weekly monthly yearly"`
	StartDate   string     `json:"start_date" validate:"required"`
	EndDate     string     `json:"end_date"`
}

func (b billRequest) bill() (core.RecurringBill, error) {
	typ, err := core.ParseTransactionType(b.Type)
	if err != nil {
		return core.RecurringBill{}, err
	}
	start, err := parseTime("start_date", b.StartDate)
	if err != nil {
		return core.RecurringBill{}, err
	}
	end, err := parseTime("end_date", b.EndDate)
	if err != nil {
		return core.RecurringBill{}, err
	}
	return core.RecurringBill{
		ClientID:    b.ClientID,
		County:      b.County,
		Type:        typ,
		Amount:      b.Amount,
		Description: b.Description,
		Every:       core.RepetitionTypes(b.Every),
		StartDate:   start,
		EndDate:     end,
	}, nil
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var req billRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := req.bill()
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.deps.Billing.CreateBill(r.Context(), b)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.deps.Billing.GetBill(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeactivateBill(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Billing.DeactivateBill(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
