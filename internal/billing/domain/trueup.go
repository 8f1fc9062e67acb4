package billing

// UsageBasis is the per-party usage a true-up correction is allocated by.
// It comes either from summed historical periods or from manual entry.
type UsageBasis struct {
	Usage1M3 float64 `json:"usage_1_m3"`
	Usage2M3 float64 `json:"usage_2_m3"`
}

// Total returns the combined basis usage.
func (b UsageBasis) Total() float64 {
	return b.Usage1M3 + b.Usage2M3
}

// TrueUpResult is the derived allocation of a correction amount.
// Settlement follows the convention documented on AllocationResult:
// Share1 minus Share2, positive meaning party 1 owes party 2.
type TrueUpResult struct {
	Share1     float64 `json:"share_1"`
	Share2     float64 `json:"share_2"`
	Settlement float64 `json:"settlement"`
	BasisTotal float64 `json:"basis_total_m3"`
}

// SettleTrueUp allocates a signed correction amount by usage ratio.
// A positive amount is an additional charge, a negative amount a credit.
func SettleTrueUp(amount float64, basis UsageBasis) (TrueUpResult, error) {
	if basis.Usage1M3 < 0 || basis.Usage2M3 < 0 {
		return TrueUpResult{}, ErrNegativeUsage
	}
	total := basis.Total()
	if total <= 0 {
		return TrueUpResult{}, ErrZeroUsageBasis
	}

	share1 := amount * (basis.Usage1M3 / total)
	share2 := amount * (basis.Usage2M3 / total)
	return TrueUpResult{
		Share1:     share1,
		Share2:     share2,
		Settlement: share1 - share2,
		BasisTotal: total,
	}, nil
}
