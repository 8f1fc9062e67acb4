package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	billing "aquasplit/internal/billing/domain"
)

const defaultPeriodsTable = "billing_periods"

// PeriodRepository is a Postgres repository for billing periods. The
// history is append only, so the repository exposes no update or delete.
type PeriodRepository struct {
	db    *sql.DB
	table string
}

// PeriodRepositoryOption customizes the repository.
type PeriodRepositoryOption func(*PeriodRepository)

// WithPeriodsTable overrides the table name.
func WithPeriodsTable(table string) PeriodRepositoryOption {
	return func(r *PeriodRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewPeriodRepository constructs a repository.
func NewPeriodRepository(db *sql.DB, opts ...PeriodRepositoryOption) *PeriodRepository {
	r := &PeriodRepository{db: db, table: defaultPeriodsTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

const periodColumns = `id, period_start, period_end, invoice_number, estimated_water_m3, due_date,
	reading_start, reading_end, basic_fees_total, usage_fees_total,
	sub1_usage_m3, sub2_usage_m3, main_usage_m3, mismatch_policy,
	adjusted_usage_1, adjusted_usage_2, basic_share_1, basic_share_2,
	usage_share_1, usage_share_2, total_1, total_2, settlement, saved_at`

// List returns all saved periods ordered by period start date.
func (r *PeriodRepository) List(ctx context.Context) ([]billing.Period, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("period repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
ORDER BY period_start ASC, saved_at ASC`, periodColumns, r.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Period
	for rows.Next() {
		period, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, period)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// FindByIDs returns the periods for the given ids. A missing id is
// reported as billing.ErrPeriodNotFound.
func (r *PeriodRepository) FindByIDs(ctx context.Context, ids []billing.PeriodID) ([]billing.Period, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("period repo: nil db")
	}
	result := make([]billing.Period, 0, len(ids))
	for _, id := range ids {
		row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1
LIMIT 1`, periodColumns, r.table), string(id))
		period, err := scanPeriod(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", billing.ErrPeriodNotFound, id)
			}
			return nil, err
		}
		result = append(result, period)
	}
	return result, nil
}

// Save appends a period.
func (r *PeriodRepository) Save(ctx context.Context, period *billing.Period) (billing.PeriodID, error) {
	if r == nil || r.db == nil {
		return "", errors.New("period repo: nil db")
	}
	if period == nil {
		return "", billing.ErrNilPeriod
	}
	if err := period.Validate(); err != nil {
		return "", err
	}
	if period.ID == "" {
		return "", errors.New("period repo: missing id")
	}
	if period.SavedAt.IsZero() {
		period.SavedAt = time.Now().UTC()
	}
	var mainUsage sql.NullFloat64
	if period.MainUsageM3 != nil {
		mainUsage = sql.NullFloat64{Float64: *period.MainUsageM3, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	%s
) VALUES (
	$1, $2, $3, $4, $5, $6,
	$7, $8, $9, $10,
	$11, $12, $13, $14,
	$15, $16, $17, $18,
	$19, $20, $21, $22, $23, $24
)`, r.table, periodColumns),
		string(period.ID), period.PeriodStart, period.PeriodEnd,
		period.InvoiceNumber, period.EstimatedWaterM3, nullTime(period.DueDate),
		nullTime(period.ReadingStart), nullTime(period.ReadingEnd),
		period.BasicFeesTotal, period.UsageFeesTotal,
		period.Sub1UsageM3, period.Sub2UsageM3, mainUsage, string(period.Policy),
		period.Allocation.AdjustedUsage1, period.Allocation.AdjustedUsage2,
		period.Allocation.BasicShare1, period.Allocation.BasicShare2,
		period.Allocation.UsageShare1, period.Allocation.UsageShare2,
		period.Allocation.Total1, period.Allocation.Total2,
		period.Allocation.Settlement, period.SavedAt,
	)
	if err != nil {
		return "", err
	}
	return period.ID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPeriod(row rowScanner) (billing.Period, error) {
	var period billing.Period
	var id string
	var dueDate, readingStart, readingEnd sql.NullTime
	var mainUsage sql.NullFloat64
	var policy string
	err := row.Scan(
		&id,
		&period.PeriodStart,
		&period.PeriodEnd,
		&period.InvoiceNumber,
		&period.EstimatedWaterM3,
		&dueDate,
		&readingStart,
		&readingEnd,
		&period.BasicFeesTotal,
		&period.UsageFeesTotal,
		&period.Sub1UsageM3,
		&period.Sub2UsageM3,
		&mainUsage,
		&policy,
		&period.Allocation.AdjustedUsage1,
		&period.Allocation.AdjustedUsage2,
		&period.Allocation.BasicShare1,
		&period.Allocation.BasicShare2,
		&period.Allocation.UsageShare1,
		&period.Allocation.UsageShare2,
		&period.Allocation.Total1,
		&period.Allocation.Total2,
		&period.Allocation.Settlement,
		&period.SavedAt,
	)
	if err != nil {
		return billing.Period{}, err
	}
	period.ID = billing.PeriodID(id)
	period.Policy = billing.MismatchPolicy(policy)
	if dueDate.Valid {
		period.DueDate = dueDate.Time.UTC()
	}
	if readingStart.Valid {
		period.ReadingStart = readingStart.Time.UTC()
	}
	if readingEnd.Valid {
		period.ReadingEnd = readingEnd.Time.UTC()
	}
	if mainUsage.Valid {
		value := mainUsage.Float64
		period.MainUsageM3 = &value
	}
	period.PeriodStart = period.PeriodStart.UTC()
	period.PeriodEnd = period.PeriodEnd.UTC()
	period.SavedAt = period.SavedAt.UTC()
	return period, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
