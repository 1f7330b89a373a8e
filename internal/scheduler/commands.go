package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ClassFund/internal/calendar"
	"ClassFund/internal/model"
	"ClassFund/internal/notifier"

	"github.com/shopspring/decimal"
)

const commandTimeout = 30 * time.Second

const helpText = `Available commands:
• /status - payment status of every member
• /period - current period and contribution amount
• /pay &lt;member-id&gt; &lt;amount&gt; [note] - record a contribution
• /weekly &lt;member-id&gt; - ISO-week view of this month
• /balance - fund balance
• /archive [YYYY-MM] - archive a month (default: last month)
• /history [YYYY-MM] - archived monthly summaries`

// HandleCommand processes a structured slash command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	ctx, cancel := context.WithTimeout(s.Ctx, commandTimeout)
	defer cancel()

	name := strings.ToLower(fields[0])
	if i := strings.Index(name, "@"); i > 0 {
		name = name[:i] // "/status@ClassFundBot" in group chats
	}
	args := fields[1:]
	switch name {
	case "/status":
		return s.cmdStatus(ctx)
	case "/period":
		return s.cmdPeriod(ctx)
	case "/pay":
		return s.cmdPay(ctx, args)
	case "/weekly":
		return s.cmdWeekly(ctx, args)
	case "/balance":
		return s.cmdBalance(ctx)
	case "/archive":
		return s.cmdArchive(ctx, args)
	case "/history":
		return s.cmdHistory(ctx, args)
	default:
		return helpText
	}
}

func (s *Scheduler) cmdStatus(ctx context.Context) string {
	now := s.Now()
	statuses, err := s.Status.StatusAsOf(ctx, now)
	if err != nil {
		s.Log.WithError(err).Error("status command")
		return notifier.FormatUnavailable("Status", err)
	}
	return notifier.FormatStatusReport(statuses, now)
}

func (s *Scheduler) cmdPeriod(ctx context.Context) string {
	cfg, err := s.Fund.GetPeriodConfig(ctx)
	if err != nil {
		return notifier.FormatUnavailable("Period", err)
	}
	current, err := calendar.PeriodContaining(s.Now(), cfg.AnchorDate)
	if err != nil {
		return notifier.FormatPeriod(cfg, nil)
	}
	p, _ := calendar.PeriodByIndex(cfg.AnchorDate, current)
	return notifier.FormatPeriod(cfg, &p)
}

func (s *Scheduler) cmdPay(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return "Usage: /pay &lt;member-id&gt; &lt;amount&gt; [note]"
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Sprintf("❌ Not a number: %s", args[1])
	}
	res, err := s.Allocator.Allocate(ctx, args[0], amount, strings.Join(args[2:], " "), s.Now())
	if err != nil {
		s.Log.WithError(err).WithField("member_id", args[0]).Error("pay command")
		return notifier.FormatAllocationFailed(args[0], err)
	}
	return notifier.FormatAllocation(args[0], amount, res)
}

func (s *Scheduler) cmdWeekly(ctx context.Context, args []string) string {
	if len(args) < 1 {
		return "Usage: /weekly &lt;member-id&gt;"
	}
	now := s.Now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	weeks, err := s.Status.WeeklyStatus(ctx, args[0], first, now)
	if err != nil {
		return notifier.FormatUnavailable("Weekly status", err)
	}
	return notifier.FormatWeeklyStatus(args[0], weeks)
}

func (s *Scheduler) cmdBalance(ctx context.Context) string {
	balance, err := s.Ledger.Balance(ctx)
	if err != nil {
		return notifier.FormatUnavailable("Balance", err)
	}
	return notifier.FormatBalance(balance)
}

func parseMonth(arg string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", arg)
	if err != nil {
		return 0, 0, fmt.Errorf("expected YYYY-MM, got %q", arg)
	}
	return t.Year(), t.Month(), nil
}

func (s *Scheduler) cmdArchive(ctx context.Context, args []string) string {
	year, month := s.Archiver.PreviousMonth()
	if len(args) > 0 {
		var err error
		if year, month, err = parseMonth(args[0]); err != nil {
			return "❌ " + err.Error()
		}
	}
	report, err := s.Archiver.RunMonth(ctx, year, month)
	var open *MonthOpenError
	if errors.As(err, &open) {
		return fmt.Sprintf("⏳ %04d-%02d is not finished yet; its last period ends %s.",
			year, int(month), open.ClosesAt.AddDate(0, 0, -1).Format(time.DateOnly))
	}
	if errors.Is(err, ErrAlreadyRunning) {
		return "⏳ An archival run is already in progress."
	}
	if err != nil {
		return notifier.FormatUnavailable("Archive", err)
	}
	return notifier.FormatArchiveEvent(model.ArchiveEvent{
		Type:            model.ArchiveEventType,
		Year:            report.Year,
		Month:           report.Month,
		MemberCount:     len(report.Archived),
		AlreadyArchived: len(report.AlreadyArchived),
		FailedMemberIDs: report.Failed,
	})
}

func (s *Scheduler) cmdHistory(ctx context.Context, args []string) string {
	var filter model.ArchiveFilter
	if len(args) > 0 {
		year, month, err := parseMonth(args[0])
		if err != nil {
			return "❌ " + err.Error()
		}
		filter.Year, filter.Month = year, month
	}
	snaps, err := s.Archiver.ListArchiveSnapshots(ctx, filter)
	if err != nil {
		return notifier.FormatUnavailable("History", err)
	}
	return notifier.FormatHistory(snaps)
}
