package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"housingledger/internal/core"
	"housingledger/internal/log"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.For(log.ComponentHTTP).Error("Encode response failed", log.FieldError, err)
	}
}

// writeError maps the error taxonomy onto status codes. Internal failures
// are logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *core.ValidationError
		cerr *core.ConsistencyError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: verr.Error(), Field: verr.Field, Kind: "validation"})
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusConflict, errorBody{Error: cerr.Error(), Kind: "consistency"})
	case errors.Is(err, core.ErrConcurrencyConflict):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusConflict, errorBody{Error: "concurrent update, retry the request", Kind: "conflict"})
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found", Kind: "not_found"})
	case errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "bad_request"})
	default:
		log.For(log.ComponentHTTP).ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			log.FieldError, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
