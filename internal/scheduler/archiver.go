package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ClassFund/internal/calendar"
	"ClassFund/internal/model"
	"ClassFund/internal/reconcile"
	"ClassFund/internal/recorder"

	"github.com/sirupsen/logrus"
)

// RunState is the state of the archival task.
type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateFailed    RunState = "failed"
)

// ErrAlreadyRunning is returned when an archival run is already in progress.
var ErrAlreadyRunning = errors.New("archival run already in progress")

// MonthOpenError is returned for a month whose last period has not ended
// yet. Nothing is written for such a month.
type MonthOpenError struct {
	Year     int
	Month    time.Month
	ClosesAt time.Time // 00:00 UTC of the day after the last period
}

func (e *MonthOpenError) Error() string {
	return fmt.Sprintf("%04d-%02d is not finished: last period closes at %s",
		e.Year, int(e.Month), e.ClosesAt.Format(time.RFC3339))
}

func (e *MonthOpenError) Unwrap() error { return model.ErrInvalidPeriodRange }

// ConfigSource provides the active period config.
type ConfigSource interface {
	GetPeriodConfig(ctx context.Context) (model.PeriodConfig, error)
}

// SnapshotReader reads every contribution in [from, until) in one consistent read.
type SnapshotReader interface {
	ContributionsBetween(ctx context.Context, from, until time.Time) (map[string][]model.LedgerEntry, error)
}

// EventSink receives archive completion events. Delivery is best-effort.
type EventSink interface {
	NotifyArchive(ctx context.Context, evt model.ArchiveEvent) error
}

// RunLock serializes runs across processes. Acquire returns ErrAlreadyRunning
// when another holder has the key.
type RunLock interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// ArchiveReport summarizes one archival run.
type ArchiveReport struct {
	Year            int
	Month           time.Month
	Periods         int
	Archived        []string
	AlreadyArchived []string
	Failed          []string
	State           RunState
}

// Archiver writes one MonthlyArchiveSnapshot per member per month. It never
// touches ledger entries.
type Archiver struct {
	Config  ConfigSource
	Ledger  SnapshotReader
	Members recorder.MemberDirectory
	Archive recorder.ArchiveStore
	Events  EventSink
	Lock    RunLock // optional

	Location      *time.Location
	RunTimeout    time.Duration
	MemberTimeout time.Duration
	Now           func() time.Time
	Log           logrus.FieldLogger

	mu    sync.Mutex
	state RunState
	last  *ArchiveReport
}

// State returns the current run state.
func (a *Archiver) State() RunState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == "" {
		return StateIdle
	}
	return a.state
}

// LastReport returns the report of the most recent finished run, if any.
func (a *Archiver) LastReport() (ArchiveReport, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return ArchiveReport{}, false
	}
	return *a.last, true
}

func (a *Archiver) begin() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateRunning {
		return false
	}
	a.state = StateRunning
	return true
}

func (a *Archiver) finish(report *ArchiveReport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = report.State
	a.last = report
}

func (a *Archiver) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *Archiver) location() *time.Location {
	if a.Location != nil {
		return a.Location
	}
	return time.UTC
}

// PreviousMonth returns the calendar month before the one containing now in
// the site time zone.
func (a *Archiver) PreviousMonth() (int, time.Month) {
	local := a.now().In(a.location())
	prev := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, a.location()).AddDate(0, -1, 0)
	return prev.Year(), prev.Month()
}

// RunPreviousMonth archives the month that just ended.
func (a *Archiver) RunPreviousMonth(ctx context.Context) (ArchiveReport, error) {
	year, month := a.PreviousMonth()
	return a.RunMonth(ctx, year, month)
}

// RunMonth archives the given month. Re-running a month only inserts the
// snapshots that are missing. A failure for one member is recorded in the
// report and does not stop the others. A month whose last period is still
// open yields *MonthOpenError.
func (a *Archiver) RunMonth(ctx context.Context, year int, month time.Month) (ArchiveReport, error) {
	if !a.begin() {
		return ArchiveReport{}, ErrAlreadyRunning
	}
	report := ArchiveReport{Year: year, Month: month, State: StateFailed}
	defer a.finish(&report)

	log := a.Log.WithFields(logrus.Fields{"year": year, "month": int(month)})

	if a.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.RunTimeout)
		defer cancel()
	}

	if a.Lock != nil {
		release, err := a.Lock.Acquire(ctx, fmt.Sprintf("classfund:archive:%04d-%02d", year, int(month)))
		if err != nil {
			log.WithError(err).Warn("archival lock not acquired")
			return report, err
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				log.WithError(err).Warn("release archival lock")
			}
		}()
	}

	log.Info("archival run started")
	if err := a.archive(ctx, log, &report); err != nil {
		var open *MonthOpenError
		if errors.As(err, &open) {
			log.WithField("closes_at", open.ClosesAt).Warn("month not finished, nothing archived")
		} else {
			log.WithError(err).WithField("archived", report.Archived).Error("archival run failed")
		}
		return report, err
	}

	if len(report.Failed) > 0 {
		log.WithFields(logrus.Fields{"archived": report.Archived, "failed": report.Failed}).
			Error("archival run finished with failures")
	} else {
		report.State = StateCompleted
		log.WithFields(logrus.Fields{
			"archived":         len(report.Archived),
			"already_archived": len(report.AlreadyArchived),
		}).Info("archival run completed")
	}

	if a.Events != nil {
		evt := model.ArchiveEvent{
			Type:            model.ArchiveEventType,
			Year:            year,
			Month:           month,
			MemberCount:     len(report.Archived),
			AlreadyArchived: len(report.AlreadyArchived),
			FailedMemberIDs: report.Failed,
		}
		if err := a.Events.NotifyArchive(ctx, evt); err != nil {
			log.WithError(err).Warn("archive notification not delivered")
		}
	}
	return report, nil
}

func (a *Archiver) archive(ctx context.Context, log logrus.FieldLogger, report *ArchiveReport) error {
	cfg, err := a.Config.GetPeriodConfig(ctx)
	if err != nil {
		return err
	}
	periods := calendar.PeriodsInMonth(cfg.AnchorDate, report.Year, report.Month)
	report.Periods = len(periods)
	if len(periods) == 0 {
		log.Info("no periods ended in this month, nothing to archive")
		return nil
	}
	cutoff := periods[len(periods)-1].End.AddDate(0, 0, 1)
	if cutoff.After(a.now()) {
		return &MonthOpenError{Year: report.Year, Month: report.Month, ClosesAt: cutoff}
	}

	members, err := a.Members.ListMembers(ctx, true)
	if err != nil {
		return err
	}
	byMember, err := a.Ledger.ContributionsBetween(ctx, periods[0].Start, cutoff)
	if err != nil {
		return err
	}

	archivedAt := a.now().UTC()
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return err
		}
		statuses := reconcile.Reconcile(cfg.ContributionAmount, m.ID, periods, byMember[m.ID])
		sum := reconcile.OverallStatus(statuses)
		snap := model.MonthlyArchiveSnapshot{
			MemberID:             m.ID,
			Year:                 report.Year,
			Month:                report.Month,
			TotalAttributed:      sum.TotalAttributed,
			PeriodsPaidCount:     sum.PaidCount,
			CompletionPercentage: sum.CompletionPercentage,
			OverallState:         sum.OverallState,
			ArchivedAt:           archivedAt,
		}

		err := a.insert(ctx, snap)
		switch {
		case err == nil:
			report.Archived = append(report.Archived, m.ID)
		case errors.Is(err, model.ErrDuplicateArchive):
			report.AlreadyArchived = append(report.AlreadyArchived, m.ID)
		default:
			log.WithField("member_id", m.ID).WithError(err).Error("archive member")
			report.Failed = append(report.Failed, m.ID)
		}
	}
	return nil
}

func (a *Archiver) insert(ctx context.Context, snap model.MonthlyArchiveSnapshot) error {
	if a.MemberTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.MemberTimeout)
		defer cancel()
	}
	return a.Archive.InsertSnapshot(ctx, snap)
}

// ListArchiveSnapshots returns archived snapshots matching filter.
func (a *Archiver) ListArchiveSnapshots(ctx context.Context, filter model.ArchiveFilter) ([]model.MonthlyArchiveSnapshot, error) {
	return a.Archive.ListSnapshots(ctx, filter)
}
