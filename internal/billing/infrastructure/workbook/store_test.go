package workbook

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	billing "aquasplit/internal/billing/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "history.xlsx"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestWorkbookPeriodRoundTrip(t *testing.T) {
	store := newTestStore(t)
	repo := store.PeriodRepository()
	ctx := context.Background()

	main := 26.0
	saved := billing.Period{
		ID:               "p-1",
		PeriodStart:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:        time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC),
		InvoiceNumber:    "INV-2024-03",
		EstimatedWaterM3: 24,
		DueDate:          time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC),
		BasicFeesTotal:   84.03,
		UsageFeesTotal:   222.13,
		Sub1UsageM3:      10,
		Sub2UsageM3:      15,
		MainUsageM3:      &main,
		Policy:           billing.PolicyIgnore,
		Allocation:       billing.AllocationResult{Total1: 130.867, Total2: 175.293, Settlement: -44.426},
		SavedAt:          time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	if _, err := repo.Save(ctx, &saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	periods, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(periods) != 1 {
		t.Fatalf("got %d periods, want 1", len(periods))
	}
	got := periods[0]
	if got.ID != saved.ID || got.InvoiceNumber != saved.InvoiceNumber || got.Policy != saved.Policy {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.PeriodStart.Equal(saved.PeriodStart) || !got.DueDate.Equal(saved.DueDate) {
		t.Fatalf("dates did not survive: %+v", got)
	}
	if got.MainUsageM3 == nil || *got.MainUsageM3 != main {
		t.Fatalf("main usage did not survive: %+v", got.MainUsageM3)
	}
	if math.Abs(got.Allocation.Total1-saved.Allocation.Total1) > 1e-9 {
		t.Fatalf("allocation total 1 = %v, want %v", got.Allocation.Total1, saved.Allocation.Total1)
	}
	if !got.ReadingStart.IsZero() {
		t.Fatalf("empty reading start read back as %v", got.ReadingStart)
	}
}

func TestWorkbookListOrdersByPeriodStart(t *testing.T) {
	store := newTestStore(t)
	repo := store.PeriodRepository()
	ctx := context.Background()

	for _, p := range []struct {
		id    billing.PeriodID
		start time.Time
	}{
		{"p-2", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"p-1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	} {
		period := billing.Period{
			ID: p.id, PeriodStart: p.start, PeriodEnd: p.start.AddDate(0, 2, 0),
			BasicFeesTotal: 10, UsageFeesTotal: 10, Sub1UsageM3: 1, Sub2UsageM3: 1,
		}
		if _, err := repo.Save(ctx, &period); err != nil {
			t.Fatalf("save %s: %v", p.id, err)
		}
	}

	periods, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(periods) != 2 || periods[0].ID != "p-1" || periods[1].ID != "p-2" {
		t.Fatalf("wrong order: %+v", periods)
	}
}

func TestWorkbookFindByIDsReportsMissing(t *testing.T) {
	store := newTestStore(t)
	repo := store.PeriodRepository()
	ctx := context.Background()

	period := billing.Period{
		ID: "p-1", PeriodStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC),
		BasicFeesTotal: 10, UsageFeesTotal: 10, Sub1UsageM3: 1, Sub2UsageM3: 1,
	}
	if _, err := repo.Save(ctx, &period); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := repo.FindByIDs(ctx, []billing.PeriodID{"p-1", "p-9"}); !errors.Is(err, billing.ErrPeriodNotFound) {
		t.Fatalf("missing id: got %v", err)
	}
	found, err := repo.FindByIDs(ctx, []billing.PeriodID{"p-1"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 1 || found[0].ID != "p-1" {
		t.Fatalf("got %+v", found)
	}
}

func TestWorkbookTrueUpRoundTrip(t *testing.T) {
	store := newTestStore(t)
	repo := store.TrueUpRepository()
	ctx := context.Background()

	saved := billing.TrueUp{
		ID:          "t-1",
		CoversStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		CoversEnd:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Amount:      -60,
		Refs: []billing.PeriodRef{
			{PeriodID: "p-1", Usage1M3: 10, Usage2M3: 15},
			{PeriodID: "p-2", Usage1M3: 25, Usage2M3: 40},
		},
		Basis:   billing.UsageBasis{Usage1M3: 35, Usage2M3: 55},
		Result:  billing.TrueUpResult{Share1: -23.333333333333332, Share2: -36.666666666666664, BasisTotal: 90},
		SavedAt: time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC),
	}
	if _, err := repo.Save(ctx, &saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	trueups, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(trueups) != 1 {
		t.Fatalf("got %d true-ups, want 1", len(trueups))
	}
	got := trueups[0]
	if got.ID != saved.ID || got.Amount != saved.Amount || got.ManualBasis {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Refs) != 2 || got.Refs[1] != saved.Refs[1] {
		t.Fatalf("refs did not survive: %+v", got.Refs)
	}
	if math.Abs(got.Result.Share2-saved.Result.Share2) > 1e-9 {
		t.Fatalf("share 2 = %v, want %v", got.Result.Share2, saved.Result.Share2)
	}
}

func TestWorkbookSaveValidates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	period := billing.Period{ID: "p-1", BasicFeesTotal: -1}
	if _, err := store.PeriodRepository().Save(ctx, &period); !errors.Is(err, billing.ErrNegativeFees) {
		t.Fatalf("invalid period: got %v", err)
	}
	trueup := billing.TrueUp{ID: "t-1", ManualBasis: true, Basis: billing.UsageBasis{Usage1M3: -1}}
	if _, err := store.TrueUpRepository().Save(ctx, &trueup); !errors.Is(err, billing.ErrNegativeUsage) {
		t.Fatalf("invalid true-up: got %v", err)
	}
}
