package http

import (
	"encoding/json"
	"errors"
	"net/http"

	billing "aquasplit/internal/billing/domain"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondError maps domain errors to HTTP statuses: rejected input is a
// 400, a missing period reference a 404, everything else a 500.
func respondError(w http.ResponseWriter, log logger, op string, err error) {
	switch {
	case errors.Is(err, billing.ErrPeriodNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case billing.IsInputError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		if log != nil {
			log.Printf("%s failed: %v", op, err)
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
