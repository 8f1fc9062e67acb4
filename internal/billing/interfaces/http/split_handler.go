// Package http exposes the billing use cases over JSON endpoints.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"aquasplit/internal/audit"
	"aquasplit/internal/auth"
	billingapp "aquasplit/internal/billing/application"
	billing "aquasplit/internal/billing/domain"
)

const timeLayout = "2006-01-02"

// SplitHandler serves bill split calculations.
type SplitHandler struct {
	service     *billingapp.SplitService
	auditLogger audit.Logger
	logger      logger
}

type logger interface {
	Printf(format string, v ...any)
}

// NewSplitHandler constructs a handler.
func NewSplitHandler(service *billingapp.SplitService, auditLogger audit.Logger, log logger) (*SplitHandler, error) {
	if service == nil {
		return nil, errors.New("split handler: nil service")
	}
	return &SplitHandler{service: service, auditLogger: auditLogger, logger: log}, nil
}

type splitRequestBody struct {
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`

	InvoiceNumber    string  `json:"invoice_number"`
	EstimatedWaterM3 float64 `json:"estimated_water_m3"`
	DueDate          string  `json:"due_date"`

	ReadingStart string `json:"reading_start"`
	ReadingEnd   string `json:"reading_end"`

	BasicFeesTotal float64 `json:"basic_fees_total"`
	UsageFeesTotal float64 `json:"usage_fees_total"`

	Sub1 billing.MeterInput `json:"sub1"`
	Sub2 billing.MeterInput `json:"sub2"`
	Main billing.MeterInput `json:"main"`

	Policy string `json:"mismatch_policy"`
	Save   bool   `json:"save"`
}

type splitResponseBody struct {
	Allocation billing.AllocationResult `json:"allocation"`
	Mismatch   billing.Mismatch         `json:"mismatch"`
	Period     billing.Period           `json:"period"`
	Saved      bool                     `json:"saved"`
}

// ServeHTTP handles POST /api/v1/splits/calculate.
func (h *SplitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/splits/calculate" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body splitRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	outcome, err := h.service.Calculate(r.Context(), req)
	if err != nil {
		respondError(w, h.logger, "split", err)
		return
	}
	if outcome.Saved {
		h.logAudit(r, outcome.Period)
	}

	writeJSON(w, http.StatusOK, splitResponseBody{
		Allocation: outcome.Allocation,
		Mismatch:   outcome.Mismatch,
		Period:     outcome.Period,
		Saved:      outcome.Saved,
	})
}

func (b splitRequestBody) toRequest() (billingapp.SplitRequest, error) {
	req := billingapp.SplitRequest{
		InvoiceNumber:    b.InvoiceNumber,
		EstimatedWaterM3: b.EstimatedWaterM3,
		BasicFeesTotal:   b.BasicFeesTotal,
		UsageFeesTotal:   b.UsageFeesTotal,
		Sub1:             b.Sub1,
		Sub2:             b.Sub2,
		Main:             b.Main,
		Policy:           billing.MismatchPolicy(b.Policy),
		Save:             b.Save,
	}
	var err error
	if req.PeriodStart, err = parseDate("period_start", b.PeriodStart, true); err != nil {
		return billingapp.SplitRequest{}, err
	}
	if req.PeriodEnd, err = parseDate("period_end", b.PeriodEnd, true); err != nil {
		return billingapp.SplitRequest{}, err
	}
	if req.DueDate, err = parseDate("due_date", b.DueDate, false); err != nil {
		return billingapp.SplitRequest{}, err
	}
	if req.ReadingStart, err = parseDate("reading_start", b.ReadingStart, false); err != nil {
		return billingapp.SplitRequest{}, err
	}
	if req.ReadingEnd, err = parseDate("reading_end", b.ReadingEnd, false); err != nil {
		return billingapp.SplitRequest{}, err
	}
	return req, nil
}

func (h *SplitHandler) logAudit(r *http.Request, period billing.Period) {
	if h.auditLogger == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"invoice_number": period.InvoiceNumber,
		"period_start":   period.PeriodStart.Format(timeLayout),
		"period_end":     period.PeriodEnd.Format(timeLayout),
	})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       audit.ActionPeriodSaved,
		ResourceType: "period",
		ResourceID:   string(period.ID),
		Metadata:     meta,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

func parseDate(field, value string, required bool) (time.Time, error) {
	if value == "" {
		if required {
			return time.Time{}, errors.New(field + " is required")
		}
		return time.Time{}, nil
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(field + " must be a YYYY-MM-DD date")
	}
	return parsed.UTC(), nil
}
