package billing

import "math"

// Severity classifies how far main-meter usage drifts from the sub-meter sum.
type Severity string

const (
	SeverityNotEvaluated Severity = "not_evaluated"
	SeverityOK           Severity = "ok"
	SeverityWarning      Severity = "warning"
	SeverityInvestigate  Severity = "investigate"
)

var severityRank = map[Severity]int{
	SeverityNotEvaluated: 0,
	SeverityOK:           1,
	SeverityWarning:      2,
	SeverityInvestigate:  3,
}

// MoreSevere returns the more severe of two severities.
func MoreSevere(a, b Severity) Severity {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

// Thresholds define the classification boundaries for mismatch severity.
// Values at a boundary stay in the less severe class.
type Thresholds struct {
	AbsOK      float64 `yaml:"abs_ok"`
	AbsWarning float64 `yaml:"abs_warning"`
	PctOK      float64 `yaml:"pct_ok"`
	PctWarning float64 `yaml:"pct_warning"`
}

// DefaultThresholds returns the household defaults: up to 1 m3 and 5% is
// considered rounding/timing noise, up to 3 m3 and 10% warrants a check.
func DefaultThresholds() Thresholds {
	return Thresholds{AbsOK: 1.0, AbsWarning: 3.0, PctOK: 0.05, PctWarning: 0.10}
}

// Validate checks threshold ordering.
func (t Thresholds) Validate() error {
	if t.AbsOK < 0 || t.PctOK < 0 {
		return ErrInvalidThresholds
	}
	if t.AbsWarning < t.AbsOK || t.PctWarning < t.PctOK {
		return ErrInvalidThresholds
	}
	return nil
}

// Mismatch is the derived comparison of main-meter usage against the
// sub-meter sum. It is recomputed on demand and never stored.
type Mismatch struct {
	Evaluated bool     `json:"evaluated"`
	M3        float64  `json:"mismatch_m3"`
	Pct       float64  `json:"mismatch_pct"`
	Severity  Severity `json:"severity"`
}

// EvaluateMismatch compares main usage against the sub-meter sum. When main
// usage is absent or zero the mismatch is reported as not evaluated; that is
// a distinct state, not an error.
func EvaluateMismatch(mainUsage *float64, sub1, sub2 float64, thresholds Thresholds) (Mismatch, error) {
	if sub1 < 0 || sub2 < 0 {
		return Mismatch{}, ErrNegativeUsage
	}
	if err := thresholds.Validate(); err != nil {
		return Mismatch{}, err
	}
	if mainUsage == nil || *mainUsage <= 0 {
		if mainUsage != nil && *mainUsage < 0 {
			return Mismatch{}, ErrNegativeUsage
		}
		return Mismatch{Severity: SeverityNotEvaluated}, nil
	}

	m3 := *mainUsage - (sub1 + sub2)
	pct := m3 / *mainUsage
	severity := MoreSevere(
		classify(math.Abs(m3), thresholds.AbsOK, thresholds.AbsWarning),
		classify(math.Abs(pct), thresholds.PctOK, thresholds.PctWarning),
	)
	return Mismatch{Evaluated: true, M3: m3, Pct: pct, Severity: severity}, nil
}

func classify(value, okLimit, warningLimit float64) Severity {
	switch {
	case value <= okLimit:
		return SeverityOK
	case value <= warningLimit:
		return SeverityWarning
	default:
		return SeverityInvestigate
	}
}
