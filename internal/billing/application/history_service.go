package application

import (
	"context"
	"errors"

	billing "aquasplit/internal/billing/domain"
)

// PeriodView is a stored period plus its mismatch, recomputed for display
// against the current thresholds.
type PeriodView struct {
	billing.Period
	Mismatch billing.Mismatch `json:"mismatch"`
}

// HistoryTotals are the cumulative per-party figures over all saved periods.
type HistoryTotals struct {
	Usage1M3  float64 `json:"usage_1_m3"`
	Usage2M3  float64 `json:"usage_2_m3"`
	BasicFees float64 `json:"basic_fees"`
	UsageFees float64 `json:"usage_fees"`
	Total1    float64 `json:"total_1"`
	Total2    float64 `json:"total_2"`
	Periods   int     `json:"periods"`
}

// HistoryService reads the saved periods and true-ups.
type HistoryService struct {
	periods    billing.PeriodRepository
	trueups    billing.TrueUpRepository
	thresholds billing.Thresholds
}

// NewHistoryService constructs the service.
func NewHistoryService(periods billing.PeriodRepository, trueups billing.TrueUpRepository, thresholds billing.Thresholds) (*HistoryService, error) {
	if periods == nil {
		return nil, errors.New("history service: nil period repository")
	}
	if trueups == nil {
		return nil, errors.New("history service: nil trueup repository")
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	return &HistoryService{periods: periods, trueups: trueups, thresholds: thresholds}, nil
}

// Periods lists saved periods with fresh mismatch classification and
// cumulative totals.
func (s *HistoryService) Periods(ctx context.Context) ([]PeriodView, HistoryTotals, error) {
	periods, err := s.periods.List(ctx)
	if err != nil {
		return nil, HistoryTotals{}, err
	}

	views := make([]PeriodView, 0, len(periods))
	var totals HistoryTotals
	for i := range periods {
		period := periods[i]
		mismatch, err := period.MismatchResult(s.thresholds)
		if err != nil {
			return nil, HistoryTotals{}, err
		}
		views = append(views, PeriodView{Period: period, Mismatch: mismatch})

		totals.Usage1M3 += period.Sub1UsageM3
		totals.Usage2M3 += period.Sub2UsageM3
		totals.BasicFees += period.BasicFeesTotal
		totals.UsageFees += period.UsageFeesTotal
		totals.Total1 += period.Allocation.Total1
		totals.Total2 += period.Allocation.Total2
		totals.Periods++
	}
	return views, totals, nil
}

// TrueUps lists saved true-up records.
func (s *HistoryService) TrueUps(ctx context.Context) ([]billing.TrueUp, error) {
	return s.trueups.List(ctx)
}
