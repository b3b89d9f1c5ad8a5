package http

import (
	"net/http"

	"housingledger/internal/core"
	"housingledger/internal/housing"
)

type housingRecordRequest struct {
	ClientID         string     `json:"client_id" validate:"required,max=100"`
	County           string     `json:"county" validate:"max=100"`
	Month            core.Month `json:"month"`
	SubsidyReceived  core.Money `json:"subsidy_received"`
	ClientObligation core.Money `json:"client_obligation"`
	RentAmount       core.Money `json:"rent_amount"`
	AdminFee         core.Money `json:"admin_fee"`
	ElectricityFee   core.Money `json:"electricity_fee"`
	RentLateFee      core.Money `json:"rent_late_fee"`
}

func (s *Server) handleCreateHousingRecord(w http.ResponseWriter, r *http.Request) {
	var req housingRecordRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.deps.Housing.CreateRecord(r.Context(), housing.RecordInput(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleUpdateHousingRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch housing.RecordPatch
	if err := s.decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.deps.Housing.UpdateRecord(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetHousingRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.deps.Housing.GetRecord(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListHousingRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Housing.ListRecords(r.Context(), r.URL.Query().Get("client_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []core.HousingSupportRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

type runningTotalResponse struct {
	ClientID     string      `json:"client_id,omitempty"`
	AsOf         *core.Month `json:"as_of,omitempty"`
	RunningTotal core.Money  `json:"running_total"`
}

// handleRunningTotal sums month pool totals up to ?as_of=YYYY-MM for
// ?client_id=, or for every client when it is omitted.
func (s *Server) handleRunningTotal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	asOf, err := parseMonthParam(q, "as_of")
	if err != nil {
		writeError(w, r, err)
		return
	}
	query := housing.RunningTotalQuery{ClientID: q.Get("client_id"), AsOf: asOf}
	total, err := s.deps.Housing.GetRunningTotal(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := runningTotalResponse{ClientID: query.ClientID, RunningTotal: total}
	if !asOf.IsZero() {
		resp.AsOf = &asOf
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePostContribution(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.deps.Housing.PostContribution(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if c.Transaction != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, c)
}
