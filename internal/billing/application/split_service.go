package application

import (
	"context"
	"errors"
	"time"

	billing "aquasplit/internal/billing/domain"
	"aquasplit/internal/observability/metrics"
)

// SplitRequest carries one bill's raw figures as entered by the user.
type SplitRequest struct {
	PeriodStart time.Time
	PeriodEnd   time.Time

	InvoiceNumber    string
	EstimatedWaterM3 float64
	DueDate          time.Time

	ReadingStart time.Time
	ReadingEnd   time.Time

	BasicFeesTotal float64
	UsageFeesTotal float64

	Sub1 billing.MeterInput
	Sub2 billing.MeterInput
	Main billing.MeterInput

	Policy billing.MismatchPolicy

	// Save appends the period to history after a successful calculation.
	Save bool
}

// SplitOutcome is the calculated split, plus the saved period when
// persistence was requested.
type SplitOutcome struct {
	Allocation billing.AllocationResult
	Mismatch   billing.Mismatch
	Period     billing.Period
	Saved      bool
}

// SplitService runs the bill split use case: normalize readings, evaluate
// the mismatch, allocate fees, and optionally append to history.
type SplitService struct {
	periods    billing.PeriodRepository
	thresholds billing.Thresholds
	clock      Clock
	ids        IDFactory
}

// NewSplitService constructs the service.
func NewSplitService(periods billing.PeriodRepository, thresholds billing.Thresholds, clock Clock, ids IDFactory) (*SplitService, error) {
	if periods == nil {
		return nil, errors.New("split service: nil period repository")
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if ids == nil {
		ids = RandomIDFactory{}
	}
	return &SplitService{periods: periods, thresholds: thresholds, clock: clock, ids: ids}, nil
}

// Calculate computes the split. A calculation error leaves history untouched.
func (s *SplitService) Calculate(ctx context.Context, req SplitRequest) (SplitOutcome, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSplit(result, time.Since(start))
	}()

	outcome, err := s.calculate(ctx, req)
	if err != nil {
		result = metrics.ResultError
		return SplitOutcome{}, err
	}
	return outcome, nil
}

func (s *SplitService) calculate(ctx context.Context, req SplitRequest) (SplitOutcome, error) {
	sub1, present, err := req.Sub1.Normalize()
	if err != nil {
		return SplitOutcome{}, err
	}
	if !present {
		return SplitOutcome{}, billing.ErrSubMeterRequired
	}
	sub2, present, err := req.Sub2.Normalize()
	if err != nil {
		return SplitOutcome{}, err
	}
	if !present {
		return SplitOutcome{}, billing.ErrSubMeterRequired
	}

	var mainUsage *float64
	if mainValue, mainPresent, err := req.Main.Normalize(); err != nil {
		return SplitOutcome{}, err
	} else if mainPresent {
		mainUsage = &mainValue
	}

	allocation, mismatch, err := billing.Allocate(billing.SplitInput{
		BasicFeesTotal: req.BasicFeesTotal,
		UsageFeesTotal: req.UsageFeesTotal,
		Sub1UsageM3:    sub1,
		Sub2UsageM3:    sub2,
		MainUsageM3:    mainUsage,
		Policy:         req.Policy,
	}, s.thresholds)
	if err != nil {
		return SplitOutcome{}, err
	}
	metrics.IncMismatchSeverity(string(mismatch.Severity))

	policy := req.Policy
	if policy == "" {
		policy = billing.PolicyIgnore
	}
	period := billing.Period{
		PeriodStart:      req.PeriodStart,
		PeriodEnd:        req.PeriodEnd,
		InvoiceNumber:    req.InvoiceNumber,
		EstimatedWaterM3: req.EstimatedWaterM3,
		DueDate:          req.DueDate,
		ReadingStart:     req.ReadingStart,
		ReadingEnd:       req.ReadingEnd,
		BasicFeesTotal:   req.BasicFeesTotal,
		UsageFeesTotal:   req.UsageFeesTotal,
		Sub1UsageM3:      sub1,
		Sub2UsageM3:      sub2,
		MainUsageM3:      mainUsage,
		Policy:           policy,
		Allocation:       allocation,
	}

	outcome := SplitOutcome{Allocation: allocation, Mismatch: mismatch, Period: period}
	if !req.Save {
		return outcome, nil
	}

	period.ID = billing.PeriodID(s.ids.NewID())
	period.SavedAt = s.clock.Now().UTC()
	id, err := s.periods.Save(ctx, &period)
	if err != nil {
		return SplitOutcome{}, err
	}
	period.ID = id
	metrics.IncPeriodSaved()

	outcome.Period = period
	outcome.Saved = true
	return outcome, nil
}
