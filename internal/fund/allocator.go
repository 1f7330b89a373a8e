package fund

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ClassFund/internal/calendar"
	"ClassFund/internal/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// AllocationPolicy decides the timestamp of entries that cover periods after
// the one containing the payment.
type AllocationPolicy string

const (
	// PolicyIntendedPeriod stamps each future-period entry at 00:00 UTC of
	// its period's start so timestamp reconciliation credits that period.
	PolicyIntendedPeriod AllocationPolicy = "intended_period"
	// PolicyPaymentTime stamps every entry with the payment time; an advance
	// payment then counts entirely toward the paying period.
	PolicyPaymentTime AllocationPolicy = "payment_time"
)

// ParseAllocationPolicy maps a config string to a policy. Empty selects
// PolicyIntendedPeriod.
func ParseAllocationPolicy(s string) (AllocationPolicy, error) {
	switch AllocationPolicy(strings.TrimSpace(s)) {
	case "", PolicyIntendedPeriod:
		return PolicyIntendedPeriod, nil
	case PolicyPaymentTime:
		return PolicyPaymentTime, nil
	}
	return "", fmt.Errorf("unknown allocation policy %q", s)
}

const (
	periodLabel  = " — period "
	partialLabel = " (partial)"
	defaultNote  = "Contribution"
)

// ConfigSource provides the active period config.
type ConfigSource interface {
	GetPeriodConfig(ctx context.Context) (model.PeriodConfig, error)
}

// EntryWriter appends ledger entries atomically: all or none.
type EntryWriter interface {
	AppendBatch(ctx context.Context, entries []model.LedgerEntry) ([]model.LedgerEntry, error)
}

// AllocationResult describes what one Allocate call wrote.
type AllocationResult struct {
	Entries       []model.LedgerEntry
	CurrentPeriod int
	FullPeriods   int
	Remainder     decimal.Decimal
}

// Allocator splits lump-sum contributions across periods.
type Allocator struct {
	Config ConfigSource
	Ledger EntryWriter
	Policy AllocationPolicy
	Log    logrus.FieldLogger
}

// NewAllocator creates an Allocator.
func NewAllocator(cfg ConfigSource, ledger EntryWriter, policy AllocationPolicy, log logrus.FieldLogger) *Allocator {
	return &Allocator{Config: cfg, Ledger: ledger, Policy: policy, Log: log}
}

// Allocate writes one contribution entry per period covered by amount,
// starting with the period containing now, plus one entry for any remainder.
// Nothing is written unless every entry is.
func (a *Allocator) Allocate(ctx context.Context, memberID string, amount decimal.Decimal, note string, now time.Time) (AllocationResult, error) {
	if memberID == "" {
		return AllocationResult{}, fmt.Errorf("allocate: member id is required")
	}
	if !amount.IsPositive() {
		return AllocationResult{}, fmt.Errorf("%w: amount must be positive, got %s", model.ErrInvalidAmount, amount)
	}

	cfg, err := a.Config.GetPeriodConfig(ctx)
	if err != nil {
		return AllocationResult{}, fmt.Errorf("allocate: %w", err)
	}

	plan, err := Plan(cfg, a.Policy, memberID, amount, note, now)
	if err != nil {
		return AllocationResult{}, err
	}

	written, err := a.Ledger.AppendBatch(ctx, plan.Entries)
	if err != nil {
		a.Log.WithFields(logrus.Fields{"member_id": memberID, "amount": amount.String()}).
			WithError(err).Error("allocation failed, nothing recorded")
		return AllocationResult{}, fmt.Errorf("allocate: %w", err)
	}
	plan.Entries = written

	a.Log.WithFields(logrus.Fields{
		"member_id":    memberID,
		"amount":       amount.String(),
		"period":       plan.CurrentPeriod,
		"full_periods": plan.FullPeriods,
		"remainder":    plan.Remainder.String(),
	}).Info("contribution allocated")
	return plan, nil
}

// Plan computes the entries Allocate would write without writing them.
func Plan(cfg model.PeriodConfig, policy AllocationPolicy, memberID string, amount decimal.Decimal, note string, now time.Time) (AllocationResult, error) {
	if !amount.IsPositive() {
		return AllocationResult{}, fmt.Errorf("%w: amount must be positive, got %s", model.ErrInvalidAmount, amount)
	}
	if !cfg.ContributionAmount.IsPositive() {
		return AllocationResult{}, fmt.Errorf("%w: contribution amount is not positive", model.ErrConfigurationMissing)
	}

	current, err := calendar.PeriodContaining(now, cfg.AnchorDate)
	if err != nil {
		return AllocationResult{}, fmt.Errorf("allocate: %w", err)
	}

	per := cfg.ContributionAmount
	remainder := amount.Mod(per)
	full := int(amount.Sub(remainder).Div(per).IntPart())

	note = strings.TrimSpace(note)
	if note == "" {
		note = defaultNote
	}

	stamp := func(index int) time.Time {
		if policy == PolicyPaymentTime || index == current {
			return now.UTC()
		}
		p, _ := calendar.PeriodByIndex(cfg.AnchorDate, index)
		return p.Start
	}

	res := AllocationResult{CurrentPeriod: current, FullPeriods: full, Remainder: remainder}
	for i := 0; i < full; i++ {
		index := current + i
		res.Entries = append(res.Entries, model.LedgerEntry{
			MemberID:  memberID,
			Kind:      model.KindContribution,
			Amount:    per,
			Note:      fmt.Sprintf("%s%s%d", note, periodLabel, index),
			CreatedAt: stamp(index),
		})
	}
	if remainder.IsPositive() {
		index := current + full
		res.Entries = append(res.Entries, model.LedgerEntry{
			MemberID:  memberID,
			Kind:      model.KindContribution,
			Amount:    remainder,
			Note:      fmt.Sprintf("%s%s%d%s", note, periodLabel, index, partialLabel),
			CreatedAt: stamp(index),
		})
	}
	return res, nil
}
