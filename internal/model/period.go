package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PeriodLengthDays is the fixed length of one billing period.
const PeriodLengthDays = 7

// PeriodConfig is the single active billing configuration of the fund.
type PeriodConfig struct {
	AnchorDate         time.Time // 00:00 UTC of the first period's start
	ContributionAmount decimal.Decimal
	UpdatedAt          time.Time
}

// Period is one 7-day billing cycle. Start and End are inclusive calendar
// dates at 00:00 UTC.
type Period struct {
	Index int
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls on a calendar day inside the period.
func (p Period) Contains(t time.Time) bool {
	d := t.UTC()
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(p.Start) && !day.After(p.End)
}

// PaymentState is the three-state status of one member in one period.
type PaymentState string

const (
	StateUnpaid  PaymentState = "unpaid"
	StatePartial PaymentState = "partial"
	StatePaid    PaymentState = "paid"
)

// Overall states reported by a StatusSummary.
const (
	OverallFullyPaid     = "fully paid"
	OverallPartiallyPaid = "partially paid"
	OverallUnpaid        = "unpaid"
)

// PeriodStatus is the derived status of one member in one period.
type PeriodStatus struct {
	PeriodIndex      int
	Start            time.Time
	End              time.Time
	AmountAttributed decimal.Decimal
	State            PaymentState
}

// StatusSummary aggregates a sequence of PeriodStatus.
type StatusSummary struct {
	PaidCount            int
	PartialCount         int
	UnpaidCount          int
	TotalPeriods         int
	TotalAttributed      decimal.Decimal
	CompletionPercentage int
	OverallState         string
}

// MemberStatus bundles a member's per-period statuses with their summary.
type MemberStatus struct {
	Member  Member
	Periods []PeriodStatus
	Summary StatusSummary
}
