package billing

// UsageFromReadings derives a usage quantity from a start/end reading pair.
func UsageFromReadings(previous, current float64) (float64, error) {
	if previous < 0 || current < 0 {
		return 0, ErrNegativeReading
	}
	if current < previous {
		return 0, ErrInvertedReading
	}
	return current - previous, nil
}

// UsageFromValue validates a directly entered usage quantity.
func UsageFromValue(value float64) (float64, error) {
	if value < 0 {
		return 0, ErrNegativeUsage
	}
	return value, nil
}

// MeterInput carries one meter's raw input in either of the two entry modes:
// a start/end reading pair, or a direct usage value. A fully empty input is
// valid for optional meters and normalizes to "not present".
type MeterInput struct {
	Previous *float64 `json:"previous,omitempty"`
	Current  *float64 `json:"current,omitempty"`
	Usage    *float64 `json:"usage,omitempty"`
}

// Present reports whether any value was entered for the meter.
func (m MeterInput) Present() bool {
	return m.Previous != nil || m.Current != nil || m.Usage != nil
}

// Normalize resolves the input to a non-negative usage quantity.
// The boolean result is false when the meter was left empty.
func (m MeterInput) Normalize() (float64, bool, error) {
	if m.Usage != nil {
		if m.Previous != nil || m.Current != nil {
			return 0, false, ErrIncompleteReading
		}
		usage, err := UsageFromValue(*m.Usage)
		if err != nil {
			return 0, false, err
		}
		return usage, true, nil
	}
	if m.Previous == nil && m.Current == nil {
		return 0, false, nil
	}
	if m.Previous == nil || m.Current == nil {
		return 0, false, ErrIncompleteReading
	}
	usage, err := UsageFromReadings(*m.Previous, *m.Current)
	if err != nil {
		return 0, false, err
	}
	return usage, true, nil
}
