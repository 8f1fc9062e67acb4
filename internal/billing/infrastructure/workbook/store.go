// Package workbook persists billing history in a spreadsheet file. It is
// the small-deployment alternative to Postgres: one .xlsx workbook with a
// sheet per record type, readable with any spreadsheet program.
package workbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	billing "aquasplit/internal/billing/domain"
)

const (
	periodsSheet = "periods"
	trueupsSheet = "trueups"
)

var periodsHeader = []string{
	"id", "period_start", "period_end", "invoice_number", "estimated_water_m3", "due_date",
	"reading_start", "reading_end", "basic_fees_total", "usage_fees_total",
	"sub1_usage_m3", "sub2_usage_m3", "main_usage_m3", "mismatch_policy",
	"adjusted_usage_1", "adjusted_usage_2", "basic_share_1", "basic_share_2",
	"usage_share_1", "usage_share_2", "total_1", "total_2", "settlement", "saved_at",
}

var trueupsHeader = []string{
	"id", "covers_start", "covers_end", "amount", "manual_basis", "period_refs",
	"basis_usage_1_m3", "basis_usage_2_m3", "share_1", "share_2", "settlement",
	"basis_total_m3", "saved_at",
}

// Store reads and appends billing history rows in a workbook file. The
// file is reopened per operation so external edits between calls are
// picked up; writes are serialized with a mutex.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore constructs a store for the given workbook path. The file is
// created with header rows on the first save if it does not exist.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("workbook store: empty path")
	}
	return &Store{path: path}, nil
}

// PeriodRepository returns the period view of the store.
func (s *Store) PeriodRepository() *PeriodRepository { return &PeriodRepository{store: s} }

// TrueUpRepository returns the true-up view of the store.
func (s *Store) TrueUpRepository() *TrueUpRepository { return &TrueUpRepository{store: s} }

// PeriodRepository is the billing.PeriodRepository backed by the workbook.
type PeriodRepository struct {
	store *Store
}

// List returns all saved periods ordered by period start date.
func (r *PeriodRepository) List(ctx context.Context) ([]billing.Period, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	periods, err := r.store.readPeriods()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(periods, func(i, j int) bool {
		if periods[i].PeriodStart.Equal(periods[j].PeriodStart) {
			return periods[i].SavedAt.Before(periods[j].SavedAt)
		}
		return periods[i].PeriodStart.Before(periods[j].PeriodStart)
	})
	return periods, nil
}

// FindByIDs returns the periods for the given ids.
func (r *PeriodRepository) FindByIDs(ctx context.Context, ids []billing.PeriodID) ([]billing.Period, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	periods, err := r.store.readPeriods()
	if err != nil {
		return nil, err
	}
	byID := make(map[billing.PeriodID]billing.Period, len(periods))
	for _, period := range periods {
		byID[period.ID] = period
	}
	result := make([]billing.Period, 0, len(ids))
	for _, id := range ids {
		period, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", billing.ErrPeriodNotFound, id)
		}
		result = append(result, period)
	}
	return result, nil
}

// Save appends a period row.
func (r *PeriodRepository) Save(ctx context.Context, period *billing.Period) (billing.PeriodID, error) {
	if period == nil {
		return "", billing.ErrNilPeriod
	}
	if err := period.Validate(); err != nil {
		return "", err
	}
	if period.ID == "" {
		return "", errors.New("workbook store: missing period id")
	}
	if period.SavedAt.IsZero() {
		period.SavedAt = time.Now().UTC()
	}
	mainUsage := ""
	if period.MainUsageM3 != nil {
		mainUsage = formatFloat(*period.MainUsageM3)
	}
	row := []any{
		string(period.ID),
		formatTime(period.PeriodStart), formatTime(period.PeriodEnd),
		period.InvoiceNumber, formatFloat(period.EstimatedWaterM3), formatTime(period.DueDate),
		formatTime(period.ReadingStart), formatTime(period.ReadingEnd),
		formatFloat(period.BasicFeesTotal), formatFloat(period.UsageFeesTotal),
		formatFloat(period.Sub1UsageM3), formatFloat(period.Sub2UsageM3),
		mainUsage, string(period.Policy),
		formatFloat(period.Allocation.AdjustedUsage1), formatFloat(period.Allocation.AdjustedUsage2),
		formatFloat(period.Allocation.BasicShare1), formatFloat(period.Allocation.BasicShare2),
		formatFloat(period.Allocation.UsageShare1), formatFloat(period.Allocation.UsageShare2),
		formatFloat(period.Allocation.Total1), formatFloat(period.Allocation.Total2),
		formatFloat(period.Allocation.Settlement), formatTime(period.SavedAt),
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.store.appendRow(periodsSheet, row); err != nil {
		return "", err
	}
	return period.ID, nil
}

// TrueUpRepository is the billing.TrueUpRepository backed by the workbook.
type TrueUpRepository struct {
	store *Store
}

// List returns all saved true-ups ordered by covered start date.
func (r *TrueUpRepository) List(ctx context.Context) ([]billing.TrueUp, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	trueups, err := r.store.readTrueUps()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(trueups, func(i, j int) bool {
		if trueups[i].CoversStart.Equal(trueups[j].CoversStart) {
			return trueups[i].SavedAt.Before(trueups[j].SavedAt)
		}
		return trueups[i].CoversStart.Before(trueups[j].CoversStart)
	})
	return trueups, nil
}

// Save appends a true-up row.
func (r *TrueUpRepository) Save(ctx context.Context, trueup *billing.TrueUp) (billing.TrueUpID, error) {
	if trueup == nil {
		return "", billing.ErrNilTrueUp
	}
	if err := trueup.Validate(); err != nil {
		return "", err
	}
	if trueup.ID == "" {
		return "", errors.New("workbook store: missing true-up id")
	}
	if trueup.SavedAt.IsZero() {
		trueup.SavedAt = time.Now().UTC()
	}
	refs, err := json.Marshal(trueup.Refs)
	if err != nil {
		return "", err
	}
	row := []any{
		string(trueup.ID),
		formatTime(trueup.CoversStart), formatTime(trueup.CoversEnd),
		formatFloat(trueup.Amount), strconv.FormatBool(trueup.ManualBasis), string(refs),
		formatFloat(trueup.Basis.Usage1M3), formatFloat(trueup.Basis.Usage2M3),
		formatFloat(trueup.Result.Share1), formatFloat(trueup.Result.Share2),
		formatFloat(trueup.Result.Settlement), formatFloat(trueup.Result.BasisTotal),
		formatTime(trueup.SavedAt),
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.store.appendRow(trueupsSheet, row); err != nil {
		return "", err
	}
	return trueup.ID, nil
}

func (s *Store) open() (*excelize.File, error) {
	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			return s.create()
		}
		return nil, err
	}
	return excelize.OpenFile(s.path)
}

func (s *Store) create() (*excelize.File, error) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", periodsSheet)
	if _, err := f.NewSheet(trueupsSheet); err != nil {
		return nil, err
	}
	if err := writeHeader(f, periodsSheet, periodsHeader); err != nil {
		return nil, err
	}
	if err := writeHeader(f, trueupsSheet, trueupsHeader); err != nil {
		return nil, err
	}
	return f, nil
}

func writeHeader(f *excelize.File, sheet string, header []string) error {
	for i, name := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) appendRow(sheet string, row []any) error {
	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		return err
	}
	for i, value := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, len(rows)+1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return err
		}
	}
	return f.SaveAs(s.path)
}

func (s *Store) readRows(sheet string) ([][]string, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil, nil
	}
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	return rows[1:], nil
}

func (s *Store) readPeriods() ([]billing.Period, error) {
	rows, err := s.readRows(periodsSheet)
	if err != nil {
		return nil, err
	}
	result := make([]billing.Period, 0, len(rows))
	for i, row := range rows {
		period, err := parsePeriodRow(row)
		if err != nil {
			return nil, fmt.Errorf("workbook store: %s row %d: %w", periodsSheet, i+2, err)
		}
		result = append(result, period)
	}
	return result, nil
}

func (s *Store) readTrueUps() ([]billing.TrueUp, error) {
	rows, err := s.readRows(trueupsSheet)
	if err != nil {
		return nil, err
	}
	result := make([]billing.TrueUp, 0, len(rows))
	for i, row := range rows {
		trueup, err := parseTrueUpRow(row)
		if err != nil {
			return nil, fmt.Errorf("workbook store: %s row %d: %w", trueupsSheet, i+2, err)
		}
		result = append(result, trueup)
	}
	return result, nil
}

func parsePeriodRow(row []string) (billing.Period, error) {
	cells := pad(row, len(periodsHeader))
	var period billing.Period
	var err error
	period.ID = billing.PeriodID(cells[0])
	if period.PeriodStart, err = parseTime(cells[1]); err != nil {
		return billing.Period{}, err
	}
	if period.PeriodEnd, err = parseTime(cells[2]); err != nil {
		return billing.Period{}, err
	}
	period.InvoiceNumber = cells[3]
	if period.EstimatedWaterM3, err = parseFloat(cells[4]); err != nil {
		return billing.Period{}, err
	}
	if period.DueDate, err = parseTime(cells[5]); err != nil {
		return billing.Period{}, err
	}
	if period.ReadingStart, err = parseTime(cells[6]); err != nil {
		return billing.Period{}, err
	}
	if period.ReadingEnd, err = parseTime(cells[7]); err != nil {
		return billing.Period{}, err
	}
	if period.BasicFeesTotal, err = parseFloat(cells[8]); err != nil {
		return billing.Period{}, err
	}
	if period.UsageFeesTotal, err = parseFloat(cells[9]); err != nil {
		return billing.Period{}, err
	}
	if period.Sub1UsageM3, err = parseFloat(cells[10]); err != nil {
		return billing.Period{}, err
	}
	if period.Sub2UsageM3, err = parseFloat(cells[11]); err != nil {
		return billing.Period{}, err
	}
	if cells[12] != "" {
		value, err := parseFloat(cells[12])
		if err != nil {
			return billing.Period{}, err
		}
		period.MainUsageM3 = &value
	}
	period.Policy = billing.MismatchPolicy(cells[13])
	alloc := []*float64{
		&period.Allocation.AdjustedUsage1, &period.Allocation.AdjustedUsage2,
		&period.Allocation.BasicShare1, &period.Allocation.BasicShare2,
		&period.Allocation.UsageShare1, &period.Allocation.UsageShare2,
		&period.Allocation.Total1, &period.Allocation.Total2,
		&period.Allocation.Settlement,
	}
	for i, dst := range alloc {
		if *dst, err = parseFloat(cells[14+i]); err != nil {
			return billing.Period{}, err
		}
	}
	if period.SavedAt, err = parseTime(cells[23]); err != nil {
		return billing.Period{}, err
	}
	return period, nil
}

func parseTrueUpRow(row []string) (billing.TrueUp, error) {
	cells := pad(row, len(trueupsHeader))
	var trueup billing.TrueUp
	var err error
	trueup.ID = billing.TrueUpID(cells[0])
	if trueup.CoversStart, err = parseTime(cells[1]); err != nil {
		return billing.TrueUp{}, err
	}
	if trueup.CoversEnd, err = parseTime(cells[2]); err != nil {
		return billing.TrueUp{}, err
	}
	if trueup.Amount, err = parseFloat(cells[3]); err != nil {
		return billing.TrueUp{}, err
	}
	if cells[4] != "" {
		if trueup.ManualBasis, err = strconv.ParseBool(cells[4]); err != nil {
			return billing.TrueUp{}, err
		}
	}
	if cells[5] != "" {
		if err := json.Unmarshal([]byte(cells[5]), &trueup.Refs); err != nil {
			return billing.TrueUp{}, err
		}
	}
	values := []*float64{
		&trueup.Basis.Usage1M3, &trueup.Basis.Usage2M3,
		&trueup.Result.Share1, &trueup.Result.Share2,
		&trueup.Result.Settlement, &trueup.Result.BasisTotal,
	}
	for i, dst := range values {
		if *dst, err = parseFloat(cells[6+i]); err != nil {
			return billing.TrueUp{}, err
		}
	}
	if trueup.SavedAt, err = parseTime(cells[12]); err != nil {
		return billing.TrueUp{}, err
	}
	return trueup, nil
}

func pad(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	padded := make([]string, width)
	copy(padded, row)
	return padded
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(cell string) (float64, error) {
	if cell == "" {
		return 0, nil
	}
	return strconv.ParseFloat(cell, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(cell string) (time.Time, error) {
	if cell == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, cell)
}
