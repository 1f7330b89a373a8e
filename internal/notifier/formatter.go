package notifier

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"ClassFund/internal/fund"
	"ClassFund/internal/model"
	"ClassFund/internal/reconcile"

	"github.com/shopspring/decimal"
)

const currency = "Rp"

func money(d decimal.Decimal) string {
	return currency + " " + d.String()
}

func stateIcon(state model.PaymentState) string {
	switch state {
	case model.StatePaid:
		return "✅"
	case model.StatePartial:
		return "🟡"
	default:
		return "❌"
	}
}

// FormatStatusReport formats every member's status up to asOf.
func FormatStatusReport(statuses []model.MemberStatus, asOf time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>Class fund status</b> | %s\n\n", asOf.Format("2006-01-02")))
	if len(statuses) == 0 {
		b.WriteString("No active members.")
		return b.String()
	}
	if statuses[0].Summary.TotalPeriods == 0 {
		b.WriteString("No period has started yet.\n\n")
	}
	for _, st := range statuses {
		sum := st.Summary
		b.WriteString(fmt.Sprintf("<b>%s</b>: %s (%d%%)\n", html.EscapeString(st.Member.Name), sum.OverallState, sum.CompletionPercentage))
		b.WriteString(fmt.Sprintf("  paid %d | partial %d | unpaid %d | total %s\n",
			sum.PaidCount, sum.PartialCount, sum.UnpaidCount, money(sum.TotalAttributed)))
		if len(st.Periods) > 0 {
			var marks []string
			for _, p := range st.Periods {
				marks = append(marks, stateIcon(p.State))
			}
			b.WriteString("  " + strings.Join(marks, "") + "\n")
		}
	}
	return b.String()
}

// FormatPeriod formats the active config and the current period, if any.
func FormatPeriod(cfg model.PeriodConfig, current *model.Period) string {
	var b strings.Builder
	b.WriteString("📅 <b>Period settings</b>\n\n")
	b.WriteString(fmt.Sprintf("Anchor date: %s\n", cfg.AnchorDate.Format(time.DateOnly)))
	b.WriteString(fmt.Sprintf("Contribution per period: %s\n", money(cfg.ContributionAmount)))
	if current == nil {
		b.WriteString("The first period has not started yet.\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Current period: #%d (%s to %s)\n",
		current.Index, current.Start.Format(time.DateOnly), current.End.Format(time.DateOnly)))
	return b.String()
}

// FormatAllocation confirms a recorded contribution.
func FormatAllocation(memberID string, amount decimal.Decimal, res fund.AllocationResult) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("💰 <b>Contribution recorded</b> | %s\n\n", html.EscapeString(memberID)))
	b.WriteString(fmt.Sprintf("Amount: %s\n", money(amount)))
	b.WriteString(fmt.Sprintf("Full periods covered: %d (from #%d)\n", res.FullPeriods, res.CurrentPeriod))
	if res.Remainder.IsPositive() {
		b.WriteString(fmt.Sprintf("Remainder: %s\n", money(res.Remainder)))
	}
	for _, e := range res.Entries {
		b.WriteString(fmt.Sprintf("  • %s %s\n", money(e.Amount), html.EscapeString(e.Note)))
	}
	return b.String()
}

// FormatAllocationFailed reports a contribution that was not recorded.
func FormatAllocationFailed(memberID string, err error) string {
	reason := "storage unavailable"
	switch {
	case errors.Is(err, model.ErrInvalidAmount):
		reason = "invalid amount"
	case errors.Is(err, model.ErrConfigurationMissing):
		reason = "period settings are not configured"
	case errors.Is(err, model.ErrInvalidPeriodRange):
		reason = "the fund has not started yet"
	}
	return fmt.Sprintf("❌ Contribution for %s was NOT recorded: %s", html.EscapeString(memberID), reason)
}

// FormatUnavailable reports a read that failed. It never renders zeros.
func FormatUnavailable(what string, err error) string {
	if errors.Is(err, model.ErrConfigurationMissing) {
		return fmt.Sprintf("⚠️ %s unavailable: period settings are not configured", what)
	}
	return fmt.Sprintf("⚠️ %s unavailable, please try again later", what)
}

// FormatWeeklyStatus formats the legacy ISO-week view of one member.
func FormatWeeklyStatus(memberID string, weeks []reconcile.WeekStatus) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🗓 <b>Weekly status</b> | %s\n\n", html.EscapeString(memberID)))
	for _, w := range weeks {
		b.WriteString(fmt.Sprintf("%s %s: %s\n", stateIcon(w.State), w.Week, money(w.AmountAttributed)))
	}
	return b.String()
}

// FormatBalance formats the fund balance.
func FormatBalance(balance decimal.Decimal) string {
	return fmt.Sprintf("🏦 <b>Fund balance</b>: %s", money(balance))
}

// FormatArchiveEvent formats a monthly archive completion event.
func FormatArchiveEvent(evt model.ArchiveEvent) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>Monthly archive</b> | %04d-%02d\n\n", evt.Year, int(evt.Month)))
	b.WriteString(fmt.Sprintf("Members archived: %d\n", evt.MemberCount))
	if evt.AlreadyArchived > 0 {
		b.WriteString(fmt.Sprintf("Already archived: %d\n", evt.AlreadyArchived))
	}
	if len(evt.FailedMemberIDs) > 0 {
		b.WriteString(fmt.Sprintf("⚠️ Failed: %s\n", html.EscapeString(strings.Join(evt.FailedMemberIDs, ", "))))
	}
	return b.String()
}

// FormatHistory formats archived snapshots, grouped by month.
func FormatHistory(snaps []model.MonthlyArchiveSnapshot) string {
	if len(snaps) == 0 {
		return "No archived months yet."
	}
	var b strings.Builder
	b.WriteString("📚 <b>Archive history</b>\n")
	var year int
	var month time.Month
	for _, s := range snaps {
		if s.Year != year || s.Month != month {
			year, month = s.Year, s.Month
			b.WriteString(fmt.Sprintf("\n<b>%04d-%02d</b>\n", year, int(month)))
		}
		b.WriteString(fmt.Sprintf("  %s: %s (%d%%, %d paid, %s)\n",
			html.EscapeString(s.MemberID), s.OverallState, s.CompletionPercentage, s.PeriodsPaidCount, money(s.TotalAttributed)))
	}
	return b.String()
}
