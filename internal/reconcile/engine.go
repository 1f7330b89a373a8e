// Package reconcile derives per-period payment status from ledger entries.
// Nothing here writes; the same inputs always give the same statuses.
package reconcile

import (
	"ClassFund/internal/calendar"
	"ClassFund/internal/model"

	"github.com/shopspring/decimal"
)

// Classify maps an attributed amount to a payment state.
func Classify(attributed, expected decimal.Decimal) model.PaymentState {
	switch {
	case attributed.GreaterThanOrEqual(expected):
		return model.StatePaid
	case attributed.IsPositive():
		return model.StatePartial
	default:
		return model.StateUnpaid
	}
}

// Reconcile buckets memberID's contribution entries into periods by the UTC
// date of CreatedAt and classifies each period against the expected amount.
// Entries of other members or kinds, and entries outside every period, are
// ignored.
func Reconcile(expected decimal.Decimal, memberID string, periods []model.Period, entries []model.LedgerEntry) []model.PeriodStatus {
	sums := make([]decimal.Decimal, len(periods))
	for i := range sums {
		sums[i] = decimal.Zero
	}
	for _, e := range entries {
		if e.MemberID != memberID || e.Kind != model.KindContribution {
			continue
		}
		for i, p := range periods {
			if p.Contains(e.CreatedAt) {
				sums[i] = sums[i].Add(e.Amount)
				break
			}
		}
	}

	out := make([]model.PeriodStatus, len(periods))
	for i, p := range periods {
		out[i] = model.PeriodStatus{
			PeriodIndex:      p.Index,
			Start:            p.Start,
			End:              p.End,
			AmountAttributed: sums[i],
			State:            Classify(sums[i], expected),
		}
	}
	return out
}

// OverallStatus aggregates per-period statuses. An empty sequence is unpaid
// with zero completion.
func OverallStatus(statuses []model.PeriodStatus) model.StatusSummary {
	sum := model.StatusSummary{
		TotalPeriods:    len(statuses),
		TotalAttributed: decimal.Zero,
		OverallState:    model.OverallUnpaid,
	}
	for _, st := range statuses {
		sum.TotalAttributed = sum.TotalAttributed.Add(st.AmountAttributed)
		switch st.State {
		case model.StatePaid:
			sum.PaidCount++
		case model.StatePartial:
			sum.PartialCount++
		default:
			sum.UnpaidCount++
		}
	}
	if sum.TotalPeriods == 0 {
		return sum
	}

	// round half up
	sum.CompletionPercentage = (200*sum.PaidCount + sum.TotalPeriods) / (2 * sum.TotalPeriods)
	switch {
	case sum.CompletionPercentage == 100:
		sum.OverallState = model.OverallFullyPaid
	case sum.PaidCount > 0 || sum.PartialCount > 0:
		sum.OverallState = model.OverallPartiallyPaid
	}
	return sum
}

// WeekStatus is the legacy weekly view, keyed by ISO calendar week rather
// than by anchored period.
type WeekStatus struct {
	Week             calendar.ISOWeek
	AmountAttributed decimal.Decimal
	State            model.PaymentState
}

// ReconcileISOWeeks buckets memberID's contributions by ISO week.
func ReconcileISOWeeks(expected decimal.Decimal, memberID string, weeks []calendar.ISOWeek, entries []model.LedgerEntry) []WeekStatus {
	index := make(map[calendar.ISOWeek]int, len(weeks))
	out := make([]WeekStatus, len(weeks))
	for i, w := range weeks {
		index[w] = i
		out[i] = WeekStatus{Week: w, AmountAttributed: decimal.Zero}
	}
	for _, e := range entries {
		if e.MemberID != memberID || e.Kind != model.KindContribution {
			continue
		}
		if i, ok := index[calendar.ISOWeekOf(e.CreatedAt)]; ok {
			out[i].AmountAttributed = out[i].AmountAttributed.Add(e.Amount)
		}
	}
	for i := range out {
		out[i].State = Classify(out[i].AmountAttributed, expected)
	}
	return out
}
