package billing

import "errors"

var (
	// ErrNegativeReading is returned when a meter reading is below zero.
	ErrNegativeReading = errors.New("billing: negative meter reading")
	// ErrInvertedReading is returned when the end reading is below the start reading.
	ErrInvertedReading = errors.New("billing: end reading below start reading")
	// ErrIncompleteReading is returned when only one of start/end readings is provided.
	ErrIncompleteReading = errors.New("billing: incomplete meter reading pair")
	// ErrNegativeUsage is returned when a usage quantity is below zero.
	ErrNegativeUsage = errors.New("billing: negative usage")
	// ErrNegativeFees is returned when a fee total is below zero.
	ErrNegativeFees = errors.New("billing: negative fee total")
	// ErrZeroUsageBasis is returned when a ratio split has no usage to divide by.
	ErrZeroUsageBasis = errors.New("billing: combined usage basis is zero")
	// ErrMainMeterRequired is returned when a mismatch policy is selected without main meter usage.
	ErrMainMeterRequired = errors.New("billing: mismatch policy requires main meter usage")
	// ErrAdjustedUsageNegative is returned when mismatch adjustment drives a usage below zero.
	ErrAdjustedUsageNegative = errors.New("billing: adjusted usage became negative")
	// ErrInvalidPolicy is returned for an unknown mismatch policy.
	ErrInvalidPolicy = errors.New("billing: unknown mismatch policy")
	// ErrInvalidThresholds is returned when mismatch thresholds are not ordered.
	ErrInvalidThresholds = errors.New("billing: invalid mismatch thresholds")
	// ErrSubMeterRequired is returned when a sub-meter input is left empty.
	ErrSubMeterRequired = errors.New("billing: sub-meter usage is required")
	// ErrNilPeriod is returned when saving a nil period.
	ErrNilPeriod = errors.New("billing: nil period")
	// ErrNilTrueUp is returned when saving a nil true-up.
	ErrNilTrueUp = errors.New("billing: nil true-up")
	// ErrPeriodNotFound is returned when a referenced period does not exist.
	ErrPeriodNotFound = errors.New("billing: period not found")
	// ErrEmptyPeriodSelection is returned when a true-up selects no periods.
	ErrEmptyPeriodSelection = errors.New("billing: no periods selected")
	// ErrAmbiguousUsageBasis is returned when a true-up provides both a
	// manual usage pair and a period selection.
	ErrAmbiguousUsageBasis = errors.New("billing: both manual usage and period selection provided")
)

// IsInputError reports whether err stems from caller input rather than the
// store. Handlers map these to a 400 response.
func IsInputError(err error) bool {
	for _, candidate := range []error{
		ErrNegativeReading,
		ErrInvertedReading,
		ErrIncompleteReading,
		ErrNegativeUsage,
		ErrNegativeFees,
		ErrZeroUsageBasis,
		ErrMainMeterRequired,
		ErrAdjustedUsageNegative,
		ErrInvalidPolicy,
		ErrInvalidThresholds,
		ErrSubMeterRequired,
		ErrEmptyPeriodSelection,
		ErrAmbiguousUsageBasis,
	} {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}
