package billing

import "time"

// PeriodID identifies a saved billing period.
type PeriodID string

// TrueUpID identifies a saved true-up record.
type TrueUpID string

// Period is one saved billing period with its computed split. Periods are
// immutable once saved and are never deleted by the core; corrections
// arrive as separate TrueUp records referencing them.
type Period struct {
	ID          PeriodID  `json:"id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	// Invoice metadata from the supplier bill.
	InvoiceNumber    string    `json:"invoice_number,omitempty"`
	EstimatedWaterM3 float64   `json:"estimated_water_m3,omitempty"`
	DueDate          time.Time `json:"due_date"`

	// Reading window: when the meters were actually read.
	ReadingStart time.Time `json:"reading_start"`
	ReadingEnd   time.Time `json:"reading_end"`

	BasicFeesTotal float64        `json:"basic_fees_total"`
	UsageFeesTotal float64        `json:"usage_fees_total"`
	Sub1UsageM3    float64        `json:"sub1_usage_m3"`
	Sub2UsageM3    float64        `json:"sub2_usage_m3"`
	MainUsageM3    *float64       `json:"main_usage_m3,omitempty"`
	Policy         MismatchPolicy `json:"mismatch_policy"`

	Allocation AllocationResult `json:"allocation"`
	SavedAt    time.Time        `json:"saved_at"`
}

// Validate checks the stored figures. The period end may equal the start
// (single-day periods occur with estimated bills).
func (p *Period) Validate() error {
	if p == nil {
		return ErrNilPeriod
	}
	if p.BasicFeesTotal < 0 || p.UsageFeesTotal < 0 {
		return ErrNegativeFees
	}
	if p.Sub1UsageM3 < 0 || p.Sub2UsageM3 < 0 {
		return ErrNegativeUsage
	}
	if p.MainUsageM3 != nil && *p.MainUsageM3 < 0 {
		return ErrNegativeUsage
	}
	if p.Policy != "" && !p.Policy.Valid() {
		return ErrInvalidPolicy
	}
	return nil
}

// MismatchResult recomputes the mismatch for display; it is derived state
// and intentionally not read back from the stored allocation.
func (p *Period) MismatchResult(thresholds Thresholds) (Mismatch, error) {
	if p == nil {
		return Mismatch{}, ErrNilPeriod
	}
	return EvaluateMismatch(p.MainUsageM3, p.Sub1UsageM3, p.Sub2UsageM3, thresholds)
}

// PeriodRef is an immutable reference from a true-up to a covered period:
// the period id plus a snapshot of its usage at reference time, so later
// display does not depend on re-reading the period.
type PeriodRef struct {
	PeriodID PeriodID `json:"period_id"`
	Usage1M3 float64  `json:"usage_1_m3"`
	Usage2M3 float64  `json:"usage_2_m3"`
}

// TrueUp is one saved correction settlement. It is additive: saving a
// true-up never mutates the periods it references, and a period may be
// covered by any number of true-ups over time.
type TrueUp struct {
	ID          TrueUpID  `json:"id"`
	CoversStart time.Time `json:"covers_start"`
	CoversEnd   time.Time `json:"covers_end"`

	Amount float64 `json:"amount"`

	// ManualBasis is true when the usage basis was entered by hand
	// instead of summed from stored periods.
	ManualBasis bool        `json:"manual_basis"`
	Refs        []PeriodRef `json:"period_refs,omitempty"`
	Basis       UsageBasis  `json:"basis"`

	Result  TrueUpResult `json:"result"`
	SavedAt time.Time    `json:"saved_at"`
}

// Validate checks the stored figures.
func (t *TrueUp) Validate() error {
	if t == nil {
		return ErrNilTrueUp
	}
	if t.Basis.Usage1M3 < 0 || t.Basis.Usage2M3 < 0 {
		return ErrNegativeUsage
	}
	if !t.ManualBasis && len(t.Refs) == 0 {
		return ErrEmptyPeriodSelection
	}
	return nil
}
