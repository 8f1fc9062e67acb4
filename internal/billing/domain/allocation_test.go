package billing

import (
	"errors"
	"math"
	"testing"
)

const eps = 1e-9

func approx(t *testing.T, got, want float64, label string) {
	t.Helper()
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("%s = %v, want %v", label, got, want)
	}
}

func TestAllocateIgnorePolicy(t *testing.T) {
	result, mismatch, err := Allocate(SplitInput{
		BasicFeesTotal: 84.03,
		UsageFeesTotal: 222.13,
		Sub1UsageM3:    10,
		Sub2UsageM3:    15,
	}, DefaultThresholds())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	approx(t, result.BasicShare1, 42.015, "basic share 1")
	approx(t, result.BasicShare2, 42.015, "basic share 2")
	approx(t, result.UsageShare1, 88.852, "usage share 1")
	approx(t, result.UsageShare2, 133.278, "usage share 2")
	approx(t, result.Total1, 130.867, "total 1")
	approx(t, result.Total2, 175.293, "total 2")
	approx(t, result.Settlement, 130.867-175.293, "settlement")
	if mismatch.Evaluated {
		t.Fatalf("mismatch evaluated without main meter: %+v", mismatch)
	}
}

func TestAllocateConservesFees(t *testing.T) {
	inputs := []SplitInput{
		{BasicFeesTotal: 100, UsageFeesTotal: 200, Sub1UsageM3: 30, Sub2UsageM3: 20},
		{BasicFeesTotal: 0, UsageFeesTotal: 57.31, Sub1UsageM3: 0.001, Sub2UsageM3: 12},
		{BasicFeesTotal: 84.03, UsageFeesTotal: 222.13, Sub1UsageM3: 10, Sub2UsageM3: 15, MainUsageM3: f64(27), Policy: PolicyHalf},
		{BasicFeesTotal: 84.03, UsageFeesTotal: 222.13, Sub1UsageM3: 10, Sub2UsageM3: 15, MainUsageM3: f64(27), Policy: PolicyProportional},
	}
	for i, in := range inputs {
		result, _, err := Allocate(in, DefaultThresholds())
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if math.Abs((result.BasicShare1+result.BasicShare2)-in.BasicFeesTotal) > eps {
			t.Fatalf("case %d: basic shares do not sum to total", i)
		}
		if math.Abs((result.UsageShare1+result.UsageShare2)-in.UsageFeesTotal) > 1e-9 {
			t.Fatalf("case %d: usage shares do not sum to total", i)
		}
		if math.Abs((result.Total1+result.Total2)-(in.BasicFeesTotal+in.UsageFeesTotal)) > 1e-9 {
			t.Fatalf("case %d: totals do not sum to the bill", i)
		}
	}
}

func TestAllocateHalfPolicy(t *testing.T) {
	result, _, err := Allocate(SplitInput{
		BasicFeesTotal: 100,
		UsageFeesTotal: 200,
		Sub1UsageM3:    30,
		Sub2UsageM3:    20,
		MainUsageM3:    f64(60),
		Policy:         PolicyHalf,
	}, DefaultThresholds())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	approx(t, result.AdjustedUsage1, 35, "adjusted usage 1")
	approx(t, result.AdjustedUsage2, 25, "adjusted usage 2")
	// Adjusted basis sums to main usage, so the ratio denominator is 60.
	approx(t, result.UsageShare1, 200*35.0/60.0, "usage share 1")
}

func TestAllocateProportionalPolicy(t *testing.T) {
	result, _, err := Allocate(SplitInput{
		BasicFeesTotal: 100,
		UsageFeesTotal: 200,
		Sub1UsageM3:    30,
		Sub2UsageM3:    20,
		MainUsageM3:    f64(60),
		Policy:         PolicyProportional,
	}, DefaultThresholds())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	approx(t, result.AdjustedUsage1, 36, "adjusted usage 1")
	approx(t, result.AdjustedUsage2, 24, "adjusted usage 2")
	// Proportional adjustment preserves the raw usage ratio.
	approx(t, result.UsageShare1/result.UsageShare2, 1.5, "share ratio")
}

func TestAllocatePolicyPreconditions(t *testing.T) {
	in := SplitInput{BasicFeesTotal: 10, UsageFeesTotal: 10, Sub1UsageM3: 1, Sub2UsageM3: 1, Policy: PolicyHalf}
	if _, _, err := Allocate(in, DefaultThresholds()); !errors.Is(err, ErrMainMeterRequired) {
		t.Fatalf("half without main meter: got %v", err)
	}
	in.Policy = PolicyProportional
	if _, _, err := Allocate(in, DefaultThresholds()); !errors.Is(err, ErrMainMeterRequired) {
		t.Fatalf("proportional without main meter: got %v", err)
	}
	in.MainUsageM3 = f64(0)
	if _, _, err := Allocate(in, DefaultThresholds()); !errors.Is(err, ErrMainMeterRequired) {
		t.Fatalf("proportional with zero main meter: got %v", err)
	}
}

func TestAllocateRejectsBadInput(t *testing.T) {
	base := SplitInput{BasicFeesTotal: 10, UsageFeesTotal: 10, Sub1UsageM3: 1, Sub2UsageM3: 1}

	in := base
	in.Sub2UsageM3 = -1
	if _, _, err := Allocate(in, DefaultThresholds()); !errors.Is(err, ErrNegativeUsage) {
		t.Fatalf("negative usage: got %v", err)
	}

	in = base
	in.BasicFeesTotal = -5
	if _, _, err := Allocate(in, DefaultThresholds()); !errors.Is(err, ErrNegativeFees) {
		t.Fatalf("negative fees: got %v", err)
	}

	in = base
	in.Sub1UsageM3 = 0
	in.Sub2UsageM3 = 0
	if _, _, err := Allocate(in, DefaultThresholds()); !errors.Is(err, ErrZeroUsageBasis) {
		t.Fatalf("zero usage basis: got %v", err)
	}

	in = base
	in.Policy = MismatchPolicy("fifty-fifty")
	if _, _, err := Allocate(in, DefaultThresholds()); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("unknown policy: got %v", err)
	}

	// Half of a large negative mismatch can push a small consumer below zero.
	in = base
	in.Sub1UsageM3 = 0.5
	in.Sub2UsageM3 = 20
	in.MainUsageM3 = f64(10)
	in.Policy = PolicyHalf
	if _, _, err := Allocate(in, DefaultThresholds()); !errors.Is(err, ErrAdjustedUsageNegative) {
		t.Fatalf("negative adjusted usage: got %v", err)
	}
}

func TestAllocateDefaultsToIgnore(t *testing.T) {
	result, mismatch, err := Allocate(SplitInput{
		BasicFeesTotal: 10,
		UsageFeesTotal: 30,
		Sub1UsageM3:    1,
		Sub2UsageM3:    2,
		MainUsageM3:    f64(3.5),
	}, DefaultThresholds())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	approx(t, result.AdjustedUsage1, 1, "adjusted usage 1")
	approx(t, result.UsageShare1, 10, "usage share 1")
	if !mismatch.Evaluated {
		t.Fatal("mismatch should be evaluated for display when main meter present")
	}
}
