package billing

// MismatchPolicy selects how main/sub-meter mismatch affects the usage fee
// split. It is an explicit user choice; the default keeps the mismatch
// display-only.
type MismatchPolicy string

const (
	// PolicyIgnore splits usage fees by raw sub-meter usage.
	PolicyIgnore MismatchPolicy = "ignore"
	// PolicyHalf assigns half of the mismatch volume to each party.
	PolicyHalf MismatchPolicy = "half"
	// PolicyProportional assigns mismatch volume by usage ratio.
	PolicyProportional MismatchPolicy = "proportional"
)

// Valid reports whether the policy is one of the known variants.
func (p MismatchPolicy) Valid() bool {
	switch p {
	case PolicyIgnore, PolicyHalf, PolicyProportional:
		return true
	}
	return false
}

// SplitInput carries one billing period's normalized figures.
type SplitInput struct {
	BasicFeesTotal float64
	UsageFeesTotal float64
	Sub1UsageM3    float64
	Sub2UsageM3    float64
	MainUsageM3    *float64
	Policy         MismatchPolicy
}

// AllocationResult is the derived fee split for one period.
//
// Settlement is Total1 minus Total2, signed. A positive settlement means
// party 1 owes party 2; party 2 is the party of record who pays the
// supplier invoice. This convention is fixed here and applies to true-up
// settlements as well.
type AllocationResult struct {
	AdjustedUsage1 float64 `json:"adjusted_usage_1"`
	AdjustedUsage2 float64 `json:"adjusted_usage_2"`
	BasicShare1    float64 `json:"basic_share_1"`
	BasicShare2    float64 `json:"basic_share_2"`
	UsageShare1    float64 `json:"usage_share_1"`
	UsageShare2    float64 `json:"usage_share_2"`
	Total1         float64 `json:"total_1"`
	Total2         float64 `json:"total_2"`
	Settlement     float64 `json:"settlement"`
}

// Allocate splits basic fees equally and usage fees by sub-meter usage
// ratio, optionally folding the main-meter mismatch into the usage basis
// first. The mismatch is evaluated for display regardless of policy and
// returned alongside the allocation; it is derived state and never stored.
func Allocate(in SplitInput, thresholds Thresholds) (AllocationResult, Mismatch, error) {
	if in.BasicFeesTotal < 0 || in.UsageFeesTotal < 0 {
		return AllocationResult{}, Mismatch{}, ErrNegativeFees
	}
	if in.Sub1UsageM3 < 0 || in.Sub2UsageM3 < 0 {
		return AllocationResult{}, Mismatch{}, ErrNegativeUsage
	}
	policy := in.Policy
	if policy == "" {
		policy = PolicyIgnore
	}
	if !policy.Valid() {
		return AllocationResult{}, Mismatch{}, ErrInvalidPolicy
	}

	subSum := in.Sub1UsageM3 + in.Sub2UsageM3
	if subSum <= 0 {
		return AllocationResult{}, Mismatch{}, ErrZeroUsageBasis
	}

	mismatch, err := EvaluateMismatch(in.MainUsageM3, in.Sub1UsageM3, in.Sub2UsageM3, thresholds)
	if err != nil {
		return AllocationResult{}, Mismatch{}, err
	}
	if policy != PolicyIgnore && !mismatch.Evaluated {
		return AllocationResult{}, Mismatch{}, ErrMainMeterRequired
	}

	adj1 := in.Sub1UsageM3
	adj2 := in.Sub2UsageM3
	switch policy {
	case PolicyHalf:
		adj1 += mismatch.M3 / 2
		adj2 += mismatch.M3 / 2
	case PolicyProportional:
		adj1 += mismatch.M3 * (in.Sub1UsageM3 / subSum)
		adj2 += mismatch.M3 * (in.Sub2UsageM3 / subSum)
	}
	if adj1 < 0 || adj2 < 0 {
		return AllocationResult{}, Mismatch{}, ErrAdjustedUsageNegative
	}

	adjTotal := adj1 + adj2
	if adjTotal <= 0 {
		return AllocationResult{}, Mismatch{}, ErrZeroUsageBasis
	}

	basicShare := in.BasicFeesTotal / 2
	usageShare1 := in.UsageFeesTotal * (adj1 / adjTotal)
	usageShare2 := in.UsageFeesTotal * (adj2 / adjTotal)
	total1 := basicShare + usageShare1
	total2 := basicShare + usageShare2

	return AllocationResult{
		AdjustedUsage1: adj1,
		AdjustedUsage2: adj2,
		BasicShare1:    basicShare,
		BasicShare2:    basicShare,
		UsageShare1:    usageShare1,
		UsageShare2:    usageShare2,
		Total1:         total1,
		Total2:         total2,
		Settlement:     total1 - total2,
	}, mismatch, nil
}
