package fund

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ClassFund/internal/calendar"
	"ClassFund/internal/model"
	"ClassFund/internal/reconcile"
	"ClassFund/internal/recorder"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var testConfig = model.PeriodConfig{
	AnchorDate:         time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
	ContributionAmount: decimal.NewFromInt(3000),
}

type staticConfig struct{ cfg model.PeriodConfig }

func (s staticConfig) GetPeriodConfig(context.Context) (model.PeriodConfig, error) { return s.cfg, nil }

type failingWriter struct{ calls int }

func (f *failingWriter) AppendBatch(context.Context, []model.LedgerEntry) ([]model.LedgerEntry, error) {
	f.calls++
	return nil, model.ErrDataUnavailable
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newStore(t *testing.T) *recorder.SQLiteStore {
	t.Helper()
	s, err := recorder.NewSQLiteStore(filepath.Join(t.TempDir(), "fund.db"), time.Second, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestParseAllocationPolicy(t *testing.T) {
	tests := []struct {
		in   string
		want AllocationPolicy
		ok   bool
	}{
		{"", PolicyIntendedPeriod, true},
		{"intended_period", PolicyIntendedPeriod, true},
		{"payment_time", PolicyPaymentTime, true},
		{"by_note", "", false},
	}
	for _, tt := range tests {
		got, err := ParseAllocationPolicy(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("%q: got %q err=%v", tt.in, got, err)
		}
	}
}

func TestPlan_SplitsIntoPeriods(t *testing.T) {
	now := time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		amount    int64
		full      int
		remainder int64
		entries   int
	}{
		{12000, 4, 0, 4},
		{10000, 3, 1000, 4},
		{3000, 1, 0, 1},
		{1000, 0, 1000, 1},
		{1, 0, 1, 1},
	}
	for _, tt := range tests {
		res, err := Plan(testConfig, PolicyPaymentTime, "m1", decimal.NewFromInt(tt.amount), "Iuran", now)
		if err != nil {
			t.Fatalf("%d: %v", tt.amount, err)
		}
		if res.CurrentPeriod != 3 {
			t.Errorf("%d: expected current period 3, got %d", tt.amount, res.CurrentPeriod)
		}
		if res.FullPeriods != tt.full || !res.Remainder.Equal(decimal.NewFromInt(tt.remainder)) || len(res.Entries) != tt.entries {
			t.Errorf("%d: got full=%d remainder=%s entries=%d", tt.amount, res.FullPeriods, res.Remainder, len(res.Entries))
		}
	}
}

func TestPlan_Labels(t *testing.T) {
	now := time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)
	res, err := Plan(testConfig, PolicyPaymentTime, "m1", decimal.NewFromInt(7000), "Iuran", now)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Iuran — period 3", "Iuran — period 4", "Iuran — period 5 (partial)"}
	for i, w := range want {
		if res.Entries[i].Note != w {
			t.Errorf("entry %d: expected note %q, got %q", i, w, res.Entries[i].Note)
		}
		if res.Entries[i].Kind != model.KindContribution || res.Entries[i].MemberID != "m1" {
			t.Errorf("entry %d: %+v", i, res.Entries[i])
		}
	}

	res, _ = Plan(testConfig, PolicyPaymentTime, "m1", decimal.NewFromInt(500), "  ", now)
	if res.Entries[0].Note != "Contribution — period 3 (partial)" {
		t.Errorf("default note: %q", res.Entries[0].Note)
	}
}

func TestPlan_Conservation(t *testing.T) {
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	amounts := []string{"1", "2999", "3000", "3001", "12000", "12345", "999999", "4500.50", "0.01"}
	for _, policy := range []AllocationPolicy{PolicyIntendedPeriod, PolicyPaymentTime} {
		for _, a := range amounts {
			amount := decimal.RequireFromString(a)
			res, err := Plan(testConfig, policy, "m1", amount, "x", now)
			if err != nil {
				t.Fatalf("%s: %v", a, err)
			}
			total := decimal.Zero
			for _, e := range res.Entries {
				if !e.Amount.IsPositive() {
					t.Errorf("%s: non-positive entry %s", a, e.Amount)
				}
				total = total.Add(e.Amount)
			}
			if !total.Equal(amount) {
				t.Errorf("%s/%s: entries sum to %s", policy, a, total)
			}
		}
	}
}

func TestPlan_IntendedPeriodTimestamps(t *testing.T) {
	now := time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)
	res, err := Plan(testConfig, PolicyIntendedPeriod, "m1", decimal.NewFromInt(9000), "x", now)
	if err != nil {
		t.Fatal(err)
	}
	want := []time.Time{now, time.Date(2025, 1, 27, 0, 0, 0, 0, time.UTC), time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)}
	for i, w := range want {
		if !res.Entries[i].CreatedAt.Equal(w) {
			t.Errorf("entry %d: expected %s, got %s", i, w, res.Entries[i].CreatedAt)
		}
	}
}

func TestPlan_Rejects(t *testing.T) {
	now := time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)
	for _, a := range []int64{0, -3000} {
		if _, err := Plan(testConfig, PolicyIntendedPeriod, "m1", decimal.NewFromInt(a), "", now); !errors.Is(err, model.ErrInvalidAmount) {
			t.Errorf("%d: expected ErrInvalidAmount, got %v", a, err)
		}
	}
	if _, err := Plan(testConfig, PolicyIntendedPeriod, "m1", decimal.NewFromInt(3000), "", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); !errors.Is(err, model.ErrInvalidPeriodRange) {
		t.Errorf("payment before anchor: expected ErrInvalidPeriodRange, got %v", err)
	}
}

func TestAllocate_FailureWritesNothing(t *testing.T) {
	w := &failingWriter{}
	a := NewAllocator(staticConfig{testConfig}, w, PolicyIntendedPeriod, quietLogger())
	res, err := a.Allocate(context.Background(), "m1", decimal.NewFromInt(12000), "Iuran", time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC))
	if !errors.Is(err, model.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if len(res.Entries) != 0 || res.FullPeriods != 0 {
		t.Errorf("failed allocation must not report entries: %+v", res)
	}
	if w.calls != 1 {
		t.Errorf("expected a single batch write, got %d", w.calls)
	}
}

func TestAllocate_InvalidInputNeverWrites(t *testing.T) {
	w := &failingWriter{}
	a := NewAllocator(staticConfig{testConfig}, w, PolicyIntendedPeriod, quietLogger())
	if _, err := a.Allocate(context.Background(), "m1", decimal.Zero, "", time.Now()); !errors.Is(err, model.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := a.Allocate(context.Background(), "", decimal.NewFromInt(1), "", time.Now()); err == nil {
		t.Error("expected error for empty member id")
	}
	if w.calls != 0 {
		t.Errorf("invalid input reached the ledger %d times", w.calls)
	}
}

// Anchor 2025-01-06, 3000 per period, 12000 paid on 2025-01-20.
func TestAllocate_AdvancePaymentScenario(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	a := NewAllocator(staticConfig{testConfig}, store, PolicyIntendedPeriod, quietLogger())

	now := time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)
	res, err := a.Allocate(ctx, "m1", decimal.NewFromInt(12000), "Iuran", now)
	if err != nil {
		t.Fatal(err)
	}
	if res.FullPeriods != 4 || res.CurrentPeriod != 3 || !res.Remainder.IsZero() {
		t.Fatalf("unexpected result %+v", res)
	}
	for i, e := range res.Entries {
		if e.ID == "" {
			t.Errorf("entry %d has no id", i)
		}
		if !strings.HasSuffix(e.Note, fmt.Sprintf("period %d", 3+i)) {
			t.Errorf("entry %d note %q", i, e.Note)
		}
	}

	periods := calendar.PeriodsFrom(testConfig.AnchorDate, time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC))
	window, err := store.Contributions(ctx, "m1", periods[0].Start, periods[len(periods)-1].End)
	if err != nil {
		t.Fatal(err)
	}
	statuses := reconcile.Reconcile(testConfig.ContributionAmount, "m1", periods, window)
	want := []int64{0, 0, 3000, 3000}
	for i, w := range want {
		if !statuses[i].AmountAttributed.Equal(decimal.NewFromInt(w)) {
			t.Errorf("period %d: expected %d, got %s", i+1, w, statuses[i].AmountAttributed)
		}
	}
	if statuses[2].State != model.StatePaid || statuses[3].State != model.StatePaid {
		t.Errorf("periods 3 and 4 should be paid: %s %s", statuses[2].State, statuses[3].State)
	}

	total, err := store.Sum(ctx, recorder.SumFilter{MemberID: "m1", Kind: model.KindContribution})
	if err != nil || !total.Equal(decimal.NewFromInt(12000)) {
		t.Errorf("ledger total %s err=%v", total, err)
	}
}

// Under payment_time the whole advance lands in the paying period.
func TestAllocate_PaymentTimePolicy(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	a := NewAllocator(staticConfig{testConfig}, store, PolicyPaymentTime, quietLogger())

	now := time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)
	if _, err := a.Allocate(ctx, "m1", decimal.NewFromInt(12000), "Iuran", now); err != nil {
		t.Fatal(err)
	}
	periods := calendar.PeriodsFrom(testConfig.AnchorDate, time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC))
	window, err := store.Contributions(ctx, "m1", periods[0].Start, periods[len(periods)-1].End)
	if err != nil {
		t.Fatal(err)
	}
	statuses := reconcile.Reconcile(testConfig.ContributionAmount, "m1", periods, window)
	want := []int64{0, 0, 12000, 0}
	for i, w := range want {
		if !statuses[i].AmountAttributed.Equal(decimal.NewFromInt(w)) {
			t.Errorf("period %d: expected %d, got %s", i+1, w, statuses[i].AmountAttributed)
		}
	}
}
