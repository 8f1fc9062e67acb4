package http

import (
	"errors"
	"net/http"

	billingapp "aquasplit/internal/billing/application"
)

// HistoryHandler serves the saved history.
type HistoryHandler struct {
	service *billingapp.HistoryService
	logger  logger
}

// NewHistoryHandler constructs a handler.
func NewHistoryHandler(service *billingapp.HistoryService, log logger) (*HistoryHandler, error) {
	if service == nil {
		return nil, errors.New("history handler: nil service")
	}
	return &HistoryHandler{service: service, logger: log}, nil
}

type historyPeriodsBody struct {
	Periods []billingapp.PeriodView  `json:"periods"`
	Totals  billingapp.HistoryTotals `json:"totals"`
}

// ServeHTTP handles GET /api/v1/history/periods and /api/v1/history/trueups.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/v1/history/periods":
		periods, totals, err := h.service.Periods(r.Context())
		if err != nil {
			respondError(w, h.logger, "history periods", err)
			return
		}
		if periods == nil {
			periods = []billingapp.PeriodView{}
		}
		writeJSON(w, http.StatusOK, historyPeriodsBody{Periods: periods, Totals: totals})
	case "/api/v1/history/trueups":
		trueups, err := h.service.TrueUps(r.Context())
		if err != nil {
			respondError(w, h.logger, "history trueups", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"trueups": trueups})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
