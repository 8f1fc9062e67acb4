package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	billingapp "aquasplit/internal/billing/application"
	billing "aquasplit/internal/billing/domain"
	"aquasplit/internal/billing/infrastructure/memory"
)

type fixture struct {
	periods *memory.PeriodRepository
	trueups *memory.TrueUpRepository
	split   *SplitHandler
	trueup  *TrueUpHandler
	history *HistoryHandler
	export  *ExportHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	periods := memory.NewPeriodRepository()
	trueups := memory.NewTrueUpRepository()
	thresholds := billing.DefaultThresholds()

	splitService, err := billingapp.NewSplitService(periods, thresholds, nil, nil)
	if err != nil {
		t.Fatalf("split service: %v", err)
	}
	trueupService, err := billingapp.NewTrueUpService(periods, trueups, nil, nil)
	if err != nil {
		t.Fatalf("trueup service: %v", err)
	}
	historyService, err := billingapp.NewHistoryService(periods, trueups, thresholds)
	if err != nil {
		t.Fatalf("history service: %v", err)
	}

	splitHandler, err := NewSplitHandler(splitService, nil, nil)
	if err != nil {
		t.Fatalf("split handler: %v", err)
	}
	trueupHandler, err := NewTrueUpHandler(trueupService, nil, nil)
	if err != nil {
		t.Fatalf("trueup handler: %v", err)
	}
	historyHandler, err := NewHistoryHandler(historyService, nil)
	if err != nil {
		t.Fatalf("history handler: %v", err)
	}
	exportHandler, err := NewExportHandler(historyService, PartyLabels{}, nil, nil)
	if err != nil {
		t.Fatalf("export handler: %v", err)
	}
	return &fixture{
		periods: periods,
		trueups: trueups,
		split:   splitHandler,
		trueup:  trueupHandler,
		history: historyHandler,
		export:  exportHandler,
	}
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSplitCalculateEndpoint(t *testing.T) {
	fx := newFixture(t)

	rec := postJSON(t, fx.split, "/api/v1/splits/calculate", `{
		"period_start": "2024-03-01",
		"period_end": "2024-04-30",
		"invoice_number": "INV-2024-03",
		"basic_fees_total": 84.03,
		"usage_fees_total": 222.13,
		"sub1": {"previous": 100, "current": 110},
		"sub2": {"usage": 15},
		"save": true
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body splitResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Saved || body.Period.ID == "" {
		t.Fatalf("period not saved: %+v", body)
	}
	if body.Mismatch.Evaluated {
		t.Fatalf("mismatch evaluated without main meter: %+v", body.Mismatch)
	}
	if diff := body.Allocation.Total1 - 130.867; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("total 1 = %v", body.Allocation.Total1)
	}

	saved, err := fx.periods.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(saved) != 1 || saved[0].InvoiceNumber != "INV-2024-03" {
		t.Fatalf("saved periods: %+v", saved)
	}
}

func TestSplitCalculateRejectsBadInput(t *testing.T) {
	fx := newFixture(t)

	cases := []struct {
		name string
		body string
	}{
		{"inverted reading", `{
			"period_start": "2024-03-01", "period_end": "2024-04-30",
			"basic_fees_total": 10, "usage_fees_total": 10,
			"sub1": {"previous": 110, "current": 100},
			"sub2": {"usage": 15}
		}`},
		{"missing sub meter", `{
			"period_start": "2024-03-01", "period_end": "2024-04-30",
			"basic_fees_total": 10, "usage_fees_total": 10,
			"sub1": {"usage": 10}
		}`},
		{"policy needs main meter", `{
			"period_start": "2024-03-01", "period_end": "2024-04-30",
			"basic_fees_total": 10, "usage_fees_total": 10,
			"sub1": {"usage": 10}, "sub2": {"usage": 15},
			"mismatch_policy": "half"
		}`},
		{"missing period start", `{
			"period_end": "2024-04-30",
			"basic_fees_total": 10, "usage_fees_total": 10,
			"sub1": {"usage": 10}, "sub2": {"usage": 15}
		}`},
	}
	for _, tc := range cases {
		rec := postJSON(t, fx.split, "/api/v1/splits/calculate", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, body %s", tc.name, rec.Code, rec.Body.String())
		}
	}

	saved, err := fx.periods.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(saved) != 0 {
		t.Fatalf("rejected input reached history: %+v", saved)
	}
}

func TestTrueUpCalculateEndpoint(t *testing.T) {
	fx := newFixture(t)

	period := billing.Period{
		ID:             "p-1",
		PeriodStart:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC),
		BasicFeesTotal: 10, UsageFeesTotal: 10,
		Sub1UsageM3: 10, Sub2UsageM3: 15,
	}
	if _, err := fx.periods.Save(context.Background(), &period); err != nil {
		t.Fatalf("seed period: %v", err)
	}

	rec := postJSON(t, fx.trueup, "/api/v1/trueups/calculate", `{
		"covers_start": "2024-01-01",
		"covers_end": "2024-12-31",
		"amount": 20,
		"period_ids": ["p-1"],
		"save": true
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body trueupResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Saved || body.TrueUp.ID == "" {
		t.Fatalf("trueup not saved: %+v", body)
	}
	if diff := body.TrueUp.Result.Share1 - 8; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("share 1 = %v, want 8", body.TrueUp.Result.Share1)
	}
}

func TestTrueUpUnknownPeriodIs404(t *testing.T) {
	fx := newFixture(t)

	rec := postJSON(t, fx.trueup, "/api/v1/trueups/calculate", `{
		"covers_start": "2024-01-01",
		"covers_end": "2024-12-31",
		"amount": 20,
		"period_ids": ["p-9"]
	}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestTrueUpAmbiguousBasisIs400(t *testing.T) {
	fx := newFixture(t)

	rec := postJSON(t, fx.trueup, "/api/v1/trueups/calculate", `{
		"covers_start": "2024-01-01",
		"covers_end": "2024-12-31",
		"amount": 20,
		"period_ids": ["p-1"],
		"manual_basis": {"usage_1_m3": 10, "usage_2_m3": 15}
	}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHistoryEndpoints(t *testing.T) {
	fx := newFixture(t)

	rec := postJSON(t, fx.split, "/api/v1/splits/calculate", `{
		"period_start": "2024-03-01", "period_end": "2024-04-30",
		"basic_fees_total": 84.03, "usage_fees_total": 222.13,
		"sub1": {"usage": 10}, "sub2": {"usage": 15},
		"main": {"usage": 30},
		"save": true
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed split: %d %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/history/periods", nil)
	recGet := httptest.NewRecorder()
	fx.history.ServeHTTP(recGet, req)
	if recGet.Code != http.StatusOK {
		t.Fatalf("status = %d", recGet.Code)
	}
	var body historyPeriodsBody
	if err := json.Unmarshal(recGet.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Totals.Periods != 1 || len(body.Periods) != 1 {
		t.Fatalf("totals = %+v, periods = %d", body.Totals, len(body.Periods))
	}
	if body.Periods[0].Mismatch.Severity != billing.SeverityInvestigate {
		t.Fatalf("severity = %v", body.Periods[0].Mismatch.Severity)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/history/trueups", nil)
	recGet = httptest.NewRecorder()
	fx.history.ServeHTTP(recGet, req)
	if recGet.Code != http.StatusOK {
		t.Fatalf("trueups status = %d", recGet.Code)
	}
}

func TestExportEndpoints(t *testing.T) {
	fx := newFixture(t)

	rec := postJSON(t, fx.split, "/api/v1/splits/calculate", `{
		"period_start": "2024-03-01", "period_end": "2024-04-30",
		"invoice_number": "INV-1",
		"basic_fees_total": 84.03, "usage_fees_total": 222.13,
		"sub1": {"usage": 10}, "sub2": {"usage": 15},
		"save": true
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed split: %d %s", rec.Code, rec.Body.String())
	}

	cases := []struct {
		path        string
		contentType string
	}{
		{"/api/v1/exports/history.csv", "text/csv"},
		{"/api/v1/exports/history.pdf", "application/pdf"},
		{"/api/v1/exports/history.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{"/api/v1/exports/trueups.csv", "text/csv"},
		{"/api/v1/exports/trueups.pdf", "application/pdf"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		recGet := httptest.NewRecorder()
		fx.export.ServeHTTP(recGet, req)
		if recGet.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tc.path, recGet.Code)
		}
		if got := recGet.Header().Get("Content-Type"); got != tc.contentType {
			t.Fatalf("%s: content type = %s", tc.path, got)
		}
		if recGet.Body.Len() == 0 {
			t.Fatalf("%s: empty body", tc.path)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/history.csv", nil)
	recCSV := httptest.NewRecorder()
	fx.export.ServeHTTP(recCSV, req)
	if !strings.Contains(recCSV.Body.String(), "INV-1") {
		t.Fatalf("csv missing invoice number:\n%s", recCSV.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	fx := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/splits/calculate", nil)
	rec := httptest.NewRecorder()
	fx.split.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("split GET status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/history/periods", nil)
	rec = httptest.NewRecorder()
	fx.history.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("history POST status = %d", rec.Code)
	}
}
