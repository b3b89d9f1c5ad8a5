package http

import (
	"net/http"

	"housingledger/internal/core"
	"housingledger/internal/services"
)

type countyPaymentRequest struct {
	ClientID       string      `json:"client_id" validate:"required,max=100"`
	ApplicationID  string      `json:"application_id" validate:"max=100"`
	County         string      `json:"county" validate:"required,max=100"`
	Amount         core.Money  `json:"amount"`
	AmountDue      core.Money  `json:"amount_due"`
	Month          *core.Month `json:"month"`
	Description    string      `json:"description"`
	IdempotencyKey string      `json:"idempotency_key" validate:"required,max=200"`
}

// handleCountyPayment records a county payment synchronously. The AMQP
// intake worker runs the same operation for queued payments.
func (s *Server) handleCountyPayment(w http.ResponseWriter, r *http.Request) {
	var req countyPaymentRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.Intake.RecordCountyPayment(r.Context(), services.CountyPayment(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}
