package memory

import (
	"context"
	"sort"
	"sync"

	billing "aquasplit/internal/billing/domain"
)

// PeriodRepository is an in-memory period store. It backs tests and the
// no-configuration fallback mode; contents do not survive a restart.
type PeriodRepository struct {
	mu   sync.RWMutex
	data map[billing.PeriodID]billing.Period
}

// NewPeriodRepository constructs an empty store.
func NewPeriodRepository() *PeriodRepository {
	return &PeriodRepository{data: make(map[billing.PeriodID]billing.Period)}
}

// List returns all periods ordered by period start date.
func (r *PeriodRepository) List(ctx context.Context) ([]billing.Period, error) {
	_ = ctx
	r.mu.RLock()
	out := make([]billing.Period, 0, len(r.data))
	for _, period := range r.data {
		out = append(out, period)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PeriodStart.Equal(out[j].PeriodStart) {
			return out[i].SavedAt.Before(out[j].SavedAt)
		}
		return out[i].PeriodStart.Before(out[j].PeriodStart)
	})
	return out, nil
}

// FindByIDs returns the periods for the given ids.
func (r *PeriodRepository) FindByIDs(ctx context.Context, ids []billing.PeriodID) ([]billing.Period, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]billing.Period, 0, len(ids))
	for _, id := range ids {
		period, ok := r.data[id]
		if !ok {
			return nil, billing.ErrPeriodNotFound
		}
		out = append(out, period)
	}
	return out, nil
}

// Save appends a period (stored by value, callers cannot mutate it later).
func (r *PeriodRepository) Save(ctx context.Context, period *billing.Period) (billing.PeriodID, error) {
	_ = ctx
	if period == nil || period.ID == "" {
		return "", billing.ErrNilPeriod
	}
	if err := period.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	r.data[period.ID] = *period
	r.mu.Unlock()
	return period.ID, nil
}

// TrueUpRepository is an in-memory true-up store.
type TrueUpRepository struct {
	mu   sync.RWMutex
	data map[billing.TrueUpID]billing.TrueUp
}

// NewTrueUpRepository constructs an empty store.
func NewTrueUpRepository() *TrueUpRepository {
	return &TrueUpRepository{data: make(map[billing.TrueUpID]billing.TrueUp)}
}

// List returns all true-ups ordered by covered start date.
func (r *TrueUpRepository) List(ctx context.Context) ([]billing.TrueUp, error) {
	_ = ctx
	r.mu.RLock()
	out := make([]billing.TrueUp, 0, len(r.data))
	for _, trueup := range r.data {
		out = append(out, trueup)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CoversStart.Equal(out[j].CoversStart) {
			return out[i].SavedAt.Before(out[j].SavedAt)
		}
		return out[i].CoversStart.Before(out[j].CoversStart)
	})
	return out, nil
}

// Save appends a true-up record.
func (r *TrueUpRepository) Save(ctx context.Context, trueup *billing.TrueUp) (billing.TrueUpID, error) {
	_ = ctx
	if trueup == nil || trueup.ID == "" {
		return "", billing.ErrNilTrueUp
	}
	if err := trueup.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	r.data[trueup.ID] = *trueup
	r.mu.Unlock()
	return trueup.ID, nil
}
