package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"aquasplit/internal/audit"
	"aquasplit/internal/auth"
	billingapp "aquasplit/internal/billing/application"
	billing "aquasplit/internal/billing/domain"
)

// TrueUpHandler serves true-up settlements.
type TrueUpHandler struct {
	service     *billingapp.TrueUpService
	auditLogger audit.Logger
	logger      logger
}

// NewTrueUpHandler constructs a handler.
func NewTrueUpHandler(service *billingapp.TrueUpService, auditLogger audit.Logger, log logger) (*TrueUpHandler, error) {
	if service == nil {
		return nil, errors.New("trueup handler: nil service")
	}
	return &TrueUpHandler{service: service, auditLogger: auditLogger, logger: log}, nil
}

type trueupRequestBody struct {
	CoversStart string `json:"covers_start"`
	CoversEnd   string `json:"covers_end"`

	Amount float64 `json:"amount"`

	PeriodIDs   []string            `json:"period_ids"`
	ManualBasis *billing.UsageBasis `json:"manual_basis"`

	Save bool `json:"save"`
}

type trueupResponseBody struct {
	TrueUp billing.TrueUp `json:"trueup"`
	Saved  bool           `json:"saved"`
}

// ServeHTTP handles POST /api/v1/trueups/calculate.
func (h *TrueUpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/trueups/calculate" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body trueupRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req := billingapp.TrueUpRequest{
		Amount:      body.Amount,
		ManualBasis: body.ManualBasis,
		Save:        body.Save,
	}
	var err error
	if req.CoversStart, err = parseDate("covers_start", body.CoversStart, true); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.CoversEnd, err = parseDate("covers_end", body.CoversEnd, true); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, id := range body.PeriodIDs {
		req.PeriodIDs = append(req.PeriodIDs, billing.PeriodID(id))
	}

	outcome, err := h.service.Calculate(r.Context(), req)
	if err != nil {
		respondError(w, h.logger, "trueup", err)
		return
	}
	if outcome.Saved {
		h.logAudit(r, outcome.TrueUp)
	}

	writeJSON(w, http.StatusOK, trueupResponseBody{TrueUp: outcome.TrueUp, Saved: outcome.Saved})
}

func (h *TrueUpHandler) logAudit(r *http.Request, trueup billing.TrueUp) {
	if h.auditLogger == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"amount":       trueup.Amount,
		"manual_basis": trueup.ManualBasis,
		"covers_start": trueup.CoversStart.Format(timeLayout),
		"covers_end":   trueup.CoversEnd.Format(timeLayout),
	})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       audit.ActionTrueUpSaved,
		ResourceType: "trueup",
		ResourceID:   string(trueup.ID),
		Metadata:     meta,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
