package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"aquasplit/internal/audit"
	"aquasplit/internal/auth"
	billingapp "aquasplit/internal/billing/application"
	"aquasplit/internal/observability/metrics"
)

// ExportHandler serves the history as downloadable documents.
type ExportHandler struct {
	service     *billingapp.HistoryService
	labels      PartyLabels
	auditLogger audit.Logger
	logger      logger
}

// NewExportHandler constructs a handler.
func NewExportHandler(service *billingapp.HistoryService, labels PartyLabels, auditLogger audit.Logger, log logger) (*ExportHandler, error) {
	if service == nil {
		return nil, errors.New("export handler: nil service")
	}
	if labels.Party1 == "" || labels.Party2 == "" {
		labels = DefaultPartyLabels()
	}
	return &ExportHandler{service: service, labels: labels, auditLogger: auditLogger, logger: log}, nil
}

// ServeHTTP handles GET /api/v1/exports/{history,trueups}.{csv,pdf,xlsx}.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var format, filename, contentType string
	build := func() ([]byte, error) { return nil, nil }
	switch r.URL.Path {
	case "/api/v1/exports/history.csv":
		format, filename, contentType = "csv", "history.csv", "text/csv"
		build = func() ([]byte, error) {
			periods, totals, err := h.service.Periods(r.Context())
			if err != nil {
				return nil, err
			}
			return BuildHistoryCSV(periods, totals)
		}
	case "/api/v1/exports/history.pdf":
		format, filename, contentType = "pdf", "history.pdf", "application/pdf"
		build = func() ([]byte, error) {
			periods, totals, err := h.service.Periods(r.Context())
			if err != nil {
				return nil, err
			}
			return BuildHistoryPDF(periods, totals, h.labels)
		}
	case "/api/v1/exports/history.xlsx":
		format, filename = "xlsx", "history.xlsx"
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		build = func() ([]byte, error) {
			periods, totals, err := h.service.Periods(r.Context())
			if err != nil {
				return nil, err
			}
			return BuildHistoryXLSX(periods, totals, h.labels)
		}
	case "/api/v1/exports/trueups.csv":
		format, filename, contentType = "csv", "trueups.csv", "text/csv"
		build = func() ([]byte, error) {
			trueups, err := h.service.TrueUps(r.Context())
			if err != nil {
				return nil, err
			}
			return BuildTrueUpsCSV(trueups)
		}
	case "/api/v1/exports/trueups.pdf":
		format, filename, contentType = "pdf", "trueups.pdf", "application/pdf"
		build = func() ([]byte, error) {
			trueups, err := h.service.TrueUps(r.Context())
			if err != nil {
				return nil, err
			}
			return BuildTrueUpsPDF(trueups, h.labels)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	start := time.Now()
	body, err := build()
	if err != nil {
		metrics.ObserveHistoryExport(format, metrics.ResultError, time.Since(start))
		respondError(w, h.logger, "export "+filename, err)
		return
	}
	metrics.ObserveHistoryExport(format, metrics.ResultSuccess, time.Since(start))
	h.logAudit(r, filename, format)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(body)
}

func (h *ExportHandler) logAudit(r *http.Request, filename, format string) {
	if h.auditLogger == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{"format": format})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       audit.ActionExport,
		ResourceType: "export",
		ResourceID:   filename,
		Metadata:     meta,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
