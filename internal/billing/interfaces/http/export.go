package http

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	billingapp "aquasplit/internal/billing/application"
	billing "aquasplit/internal/billing/domain"
)

// PartyLabels names the two parties on exported documents.
type PartyLabels struct {
	Party1 string
	Party2 string
}

// DefaultPartyLabels is used when no names are configured.
func DefaultPartyLabels() PartyLabels {
	return PartyLabels{Party1: "Party 1", Party2: "Party 2"}
}

var historyCSVHeader = []string{
	"period_start", "period_end", "invoice_number",
	"usage_1_m3", "usage_2_m3", "main_usage_m3",
	"basic_fees_total", "usage_fees_total",
	"total_1", "total_2", "settlement",
	"mismatch_m3", "mismatch_severity",
}

var trueupsCSVHeader = []string{
	"covers_start", "covers_end", "amount",
	"basis_usage_1_m3", "basis_usage_2_m3",
	"share_1", "share_2", "settlement",
}

// BuildHistoryCSV renders the saved periods as CSV.
func BuildHistoryCSV(periods []billingapp.PeriodView, totals billingapp.HistoryTotals) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(historyCSVHeader); err != nil {
		return nil, err
	}
	for _, view := range periods {
		mainUsage := ""
		if view.MainUsageM3 != nil {
			mainUsage = csvFloat(*view.MainUsageM3)
		}
		mismatchM3 := ""
		if view.Mismatch.Evaluated {
			mismatchM3 = csvFloat(view.Mismatch.M3)
		}
		record := []string{
			csvDate(view.PeriodStart), csvDate(view.PeriodEnd), view.InvoiceNumber,
			csvFloat(view.Sub1UsageM3), csvFloat(view.Sub2UsageM3), mainUsage,
			csvFloat(view.BasicFeesTotal), csvFloat(view.UsageFeesTotal),
			csvFloat(view.Allocation.Total1), csvFloat(view.Allocation.Total2),
			csvFloat(view.Allocation.Settlement),
			mismatchM3, string(view.Mismatch.Severity),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	totalsRecord := []string{
		"total", "", strconv.Itoa(totals.Periods),
		csvFloat(totals.Usage1M3), csvFloat(totals.Usage2M3), "",
		csvFloat(totals.BasicFees), csvFloat(totals.UsageFees),
		csvFloat(totals.Total1), csvFloat(totals.Total2),
		csvFloat(totals.Total1 - totals.Total2), "", "",
	}
	if err := w.Write(totalsRecord); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildTrueUpsCSV renders the saved true-ups as CSV.
func BuildTrueUpsCSV(trueups []billing.TrueUp) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(trueupsCSVHeader); err != nil {
		return nil, err
	}
	for _, trueup := range trueups {
		record := []string{
			csvDate(trueup.CoversStart), csvDate(trueup.CoversEnd), csvFloat(trueup.Amount),
			csvFloat(trueup.Basis.Usage1M3), csvFloat(trueup.Basis.Usage2M3),
			csvFloat(trueup.Result.Share1), csvFloat(trueup.Result.Share2),
			csvFloat(trueup.Result.Settlement),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildHistoryPDF renders the saved periods as a PDF table.
func BuildHistoryPDF(periods []billingapp.PeriodView, totals billingapp.HistoryTotals, labels PartyLabels) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Water Bill History")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(24, 6, "From", "1", 0, "C", false, 0, "")
	pdf.CellFormat(24, 6, "To", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Invoice", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, labels.Party1+" (m3)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, labels.Party2+" (m3)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, labels.Party1+" total", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, labels.Party2+" total", "1", 0, "C", false, 0, "")
	pdf.CellFormat(26, 6, "Mismatch", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, view := range periods {
		mismatch := "-"
		if view.Mismatch.Evaluated {
			mismatch = fmt.Sprintf("%.2f (%s)", view.Mismatch.M3, view.Mismatch.Severity)
		}
		pdf.CellFormat(24, 6, view.PeriodStart.Format(timeLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(24, 6, view.PeriodEnd.Format(timeLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, view.InvoiceNumber, "1", 0, "C", false, 0, "")
		pdf.CellFormat(28, 6, fmt.Sprintf("%.2f", view.Sub1UsageM3), "1", 0, "R", false, 0, "")
		pdf.CellFormat(28, 6, fmt.Sprintf("%.2f", view.Sub2UsageM3), "1", 0, "R", false, 0, "")
		pdf.CellFormat(28, 6, fmt.Sprintf("%.2f", view.Allocation.Total1), "1", 0, "R", false, 0, "")
		pdf.CellFormat(28, 6, fmt.Sprintf("%.2f", view.Allocation.Total2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(26, 6, mismatch, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(78, 6, fmt.Sprintf("Totals over %d periods", totals.Periods), "1", 0, "L", false, 0, "")
	pdf.CellFormat(28, 6, fmt.Sprintf("%.2f", totals.Usage1M3), "1", 0, "R", false, 0, "")
	pdf.CellFormat(28, 6, fmt.Sprintf("%.2f", totals.Usage2M3), "1", 0, "R", false, 0, "")
	pdf.CellFormat(28, 6, fmt.Sprintf("%.2f", totals.Total1), "1", 0, "R", false, 0, "")
	pdf.CellFormat(28, 6, fmt.Sprintf("%.2f", totals.Total2), "1", 0, "R", false, 0, "")
	pdf.CellFormat(26, 6, "", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildTrueUpsPDF renders the saved true-ups as a PDF table.
func BuildTrueUpsPDF(trueups []billing.TrueUp, labels PartyLabels) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "True-Up Settlements")
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(24, 6, "From", "1", 0, "C", false, 0, "")
	pdf.CellFormat(24, 6, "To", "1", 0, "C", false, 0, "")
	pdf.CellFormat(26, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(34, 6, labels.Party1+" share", "1", 0, "C", false, 0, "")
	pdf.CellFormat(34, 6, labels.Party2+" share", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Settlement", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, trueup := range trueups {
		pdf.CellFormat(24, 6, trueup.CoversStart.Format(timeLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(24, 6, trueup.CoversEnd.Format(timeLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(26, 6, fmt.Sprintf("%.2f", trueup.Amount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(34, 6, fmt.Sprintf("%.2f", trueup.Result.Share1), "1", 0, "R", false, 0, "")
		pdf.CellFormat(34, 6, fmt.Sprintf("%.2f", trueup.Result.Share2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", trueup.Result.Settlement), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildHistoryXLSX renders the saved history as a workbook with a periods
// sheet and a totals sheet.
func BuildHistoryXLSX(periods []billingapp.PeriodView, totals billingapp.HistoryTotals, labels PartyLabels) ([]byte, error) {
	f := excelize.NewFile()
	periodsSheet := "periods"
	totalsSheet := "totals"
	f.SetSheetName("Sheet1", periodsSheet)
	if _, err := f.NewSheet(totalsSheet); err != nil {
		return nil, err
	}

	for i, name := range historyCSVHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(periodsSheet, cell, name); err != nil {
			return nil, err
		}
	}
	for rowIdx, view := range periods {
		mainUsage := any("")
		if view.MainUsageM3 != nil {
			mainUsage = *view.MainUsageM3
		}
		mismatchM3 := any("")
		if view.Mismatch.Evaluated {
			mismatchM3 = view.Mismatch.M3
		}
		values := []any{
			view.PeriodStart.Format(timeLayout), view.PeriodEnd.Format(timeLayout), view.InvoiceNumber,
			view.Sub1UsageM3, view.Sub2UsageM3, mainUsage,
			view.BasicFeesTotal, view.UsageFeesTotal,
			view.Allocation.Total1, view.Allocation.Total2, view.Allocation.Settlement,
			mismatchM3, string(view.Mismatch.Severity),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(periodsSheet, cell, value); err != nil {
				return nil, err
			}
		}
	}

	totalsRows := [][2]any{
		{"Periods", totals.Periods},
		{labels.Party1 + " usage (m3)", totals.Usage1M3},
		{labels.Party2 + " usage (m3)", totals.Usage2M3},
		{"Basic fees", totals.BasicFees},
		{"Usage fees", totals.UsageFees},
		{labels.Party1 + " total", totals.Total1},
		{labels.Party2 + " total", totals.Total2},
	}
	for i, row := range totalsRows {
		if err := f.SetCellValue(totalsSheet, fmt.Sprintf("A%d", i+1), row[0]); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(totalsSheet, fmt.Sprintf("B%d", i+1), row[1]); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func csvFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func csvDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}
