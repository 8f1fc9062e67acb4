package application

import (
	"context"
	"errors"
	"time"

	billing "aquasplit/internal/billing/domain"
	"aquasplit/internal/observability/metrics"
)

// TrueUpRequest carries one correction invoice and its usage basis: either
// a selection of stored period ids, or a manually entered usage pair.
type TrueUpRequest struct {
	CoversStart time.Time
	CoversEnd   time.Time

	// Amount is signed: positive for an extra charge, negative for a credit.
	Amount float64

	PeriodIDs   []billing.PeriodID
	ManualBasis *billing.UsageBasis

	Save bool
}

// TrueUpOutcome is the settled correction, persisted when requested.
type TrueUpOutcome struct {
	TrueUp billing.TrueUp
	Saved  bool
}

// TrueUpService reconciles correction invoices against saved periods.
// Referenced periods are never modified; the true-up snapshots their usage
// at reference time.
type TrueUpService struct {
	periods billing.PeriodRepository
	trueups billing.TrueUpRepository
	clock   Clock
	ids     IDFactory
}

// NewTrueUpService constructs the service.
func NewTrueUpService(periods billing.PeriodRepository, trueups billing.TrueUpRepository, clock Clock, ids IDFactory) (*TrueUpService, error) {
	if periods == nil {
		return nil, errors.New("trueup service: nil period repository")
	}
	if trueups == nil {
		return nil, errors.New("trueup service: nil trueup repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if ids == nil {
		ids = RandomIDFactory{}
	}
	return &TrueUpService{periods: periods, trueups: trueups, clock: clock, ids: ids}, nil
}

// Calculate settles the correction amount over the resolved usage basis.
func (s *TrueUpService) Calculate(ctx context.Context, req TrueUpRequest) (TrueUpOutcome, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveTrueUp(result, time.Since(start))
	}()

	outcome, err := s.calculate(ctx, req)
	if err != nil {
		result = metrics.ResultError
		return TrueUpOutcome{}, err
	}
	return outcome, nil
}

func (s *TrueUpService) calculate(ctx context.Context, req TrueUpRequest) (TrueUpOutcome, error) {
	basis, refs, manual, err := s.resolveBasis(ctx, req)
	if err != nil {
		return TrueUpOutcome{}, err
	}

	settled, err := billing.SettleTrueUp(req.Amount, basis)
	if err != nil {
		return TrueUpOutcome{}, err
	}

	trueup := billing.TrueUp{
		CoversStart: req.CoversStart,
		CoversEnd:   req.CoversEnd,
		Amount:      req.Amount,
		ManualBasis: manual,
		Refs:        refs,
		Basis:       basis,
		Result:      settled,
	}

	outcome := TrueUpOutcome{TrueUp: trueup}
	if !req.Save {
		return outcome, nil
	}

	trueup.ID = billing.TrueUpID(s.ids.NewID())
	trueup.SavedAt = s.clock.Now().UTC()
	id, err := s.trueups.Save(ctx, &trueup)
	if err != nil {
		return TrueUpOutcome{}, err
	}
	trueup.ID = id
	metrics.IncTrueUpSaved()

	outcome.TrueUp = trueup
	outcome.Saved = true
	return outcome, nil
}

func (s *TrueUpService) resolveBasis(ctx context.Context, req TrueUpRequest) (billing.UsageBasis, []billing.PeriodRef, bool, error) {
	if req.ManualBasis != nil {
		if len(req.PeriodIDs) > 0 {
			return billing.UsageBasis{}, nil, false, billing.ErrAmbiguousUsageBasis
		}
		return *req.ManualBasis, nil, true, nil
	}

	if len(req.PeriodIDs) == 0 {
		return billing.UsageBasis{}, nil, false, billing.ErrEmptyPeriodSelection
	}
	periods, err := s.periods.FindByIDs(ctx, req.PeriodIDs)
	if err != nil {
		return billing.UsageBasis{}, nil, false, err
	}

	var basis billing.UsageBasis
	refs := make([]billing.PeriodRef, 0, len(periods))
	for _, period := range periods {
		basis.Usage1M3 += period.Sub1UsageM3
		basis.Usage2M3 += period.Sub2UsageM3
		refs = append(refs, billing.PeriodRef{
			PeriodID: period.ID,
			Usage1M3: period.Sub1UsageM3,
			Usage2M3: period.Sub2UsageM3,
		})
	}
	return basis, refs, false, nil
}
