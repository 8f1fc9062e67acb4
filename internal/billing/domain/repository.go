package billing

import "context"

// PeriodRepository persists billing periods. The store is append-only from
// the core's point of view: no update or delete operations exist.
type PeriodRepository interface {
	// List returns all saved periods ordered by period start date.
	List(ctx context.Context) ([]Period, error)
	// FindByIDs returns the periods for the given ids. A missing id is
	// reported as ErrPeriodNotFound.
	FindByIDs(ctx context.Context, ids []PeriodID) ([]Period, error)
	// Save appends a period and returns its id.
	Save(ctx context.Context, period *Period) (PeriodID, error)
}

// TrueUpRepository persists true-up records.
type TrueUpRepository interface {
	// List returns all saved true-ups ordered by covered start date.
	List(ctx context.Context) ([]TrueUp, error)
	// Save appends a true-up and returns its id.
	Save(ctx context.Context, trueup *TrueUp) (TrueUpID, error)
}
