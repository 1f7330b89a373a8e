package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ClassFund/internal/fund"
	"ClassFund/internal/reconcile"
	"ClassFund/internal/recorder"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler owns the cron timer and the structured command surface.
type Scheduler struct {
	Cron      *cron.Cron
	Archiver  *Archiver
	Status    *reconcile.Service
	Allocator *fund.Allocator
	Fund      *fund.Manager
	Ledger    recorder.Ledger
	Ctx       context.Context
	Log       logrus.FieldLogger
	Now       func() time.Time

	// AfterFunc runs f once after d and returns a function that cancels it.
	AfterFunc func(d time.Duration, f func()) (cancel func() bool)

	mu          sync.Mutex
	cancelRetry func() bool
}

// archiveRetryGrace is added after a month closes before a deferred run.
const archiveRetryGrace = time.Minute

// NewScheduler creates a Scheduler whose cron expressions are evaluated in
// the archiver's site time zone.
func NewScheduler(ctx context.Context, arch *Archiver, status *reconcile.Service, alloc *fund.Allocator, fm *fund.Manager, ledger recorder.Ledger, log logrus.FieldLogger) *Scheduler {
	cronLog := cron.PrintfLogger(log)
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(arch.location()),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		Archiver:  arch,
		Status:    status,
		Allocator: alloc,
		Fund:      fm,
		Ledger:    ledger,
		Ctx:       ctx,
		Log:       log,
		Now:       time.Now,
		AfterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
	}
}

// RegisterAll registers the monthly archival task.
func (s *Scheduler) RegisterAll(archiveCron string) error {
	if _, err := s.Cron.AddFunc(archiveCron, s.monthlyArchive); err != nil {
		return fmt.Errorf("register archive task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for a running job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancelRetry != nil {
		s.cancelRetry()
		s.cancelRetry = nil
	}
	s.mu.Unlock()
	<-s.Cron.Stop().Done()
	s.Log.Info("scheduler stopped")
}

// RunArchiveNow archives the previous month immediately (manual trigger /
// ARCHIVE_ON_START). Safe to repeat.
func (s *Scheduler) RunArchiveNow() {
	s.monthlyArchive()
}

func (s *Scheduler) monthlyArchive() {
	year, month := s.Archiver.PreviousMonth()
	s.archiveMonth(year, month)
}

func (s *Scheduler) archiveMonth(year int, month time.Month) {
	report, err := s.Archiver.RunMonth(s.Ctx, year, month)
	var open *MonthOpenError
	switch {
	case errors.As(err, &open):
		s.deferArchive(open)
	case errors.Is(err, ErrAlreadyRunning):
		s.Log.Warn("monthly archive skipped, a run is already in progress")
	case err != nil:
		s.Log.WithError(err).Error("monthly archive failed")
	default:
		s.Log.WithFields(logrus.Fields{
			"year":     report.Year,
			"month":    int(report.Month),
			"archived": len(report.Archived),
			"state":    report.State,
		}).Info("monthly archive finished")
	}
}

// deferArchive reruns a month shortly after its last period closes. A site
// zone ahead of UTC reaches the 1st before the UTC periods end.
func (s *Scheduler) deferArchive(open *MonthOpenError) {
	delay := open.ClosesAt.Sub(s.Archiver.now()) + archiveRetryGrace
	year, month := open.Year, open.Month

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelRetry != nil {
		s.cancelRetry()
	}
	s.cancelRetry = s.AfterFunc(delay, func() { s.archiveMonth(year, month) })

	s.Log.WithFields(logrus.Fields{
		"year":      year,
		"month":     int(month),
		"closes_at": open.ClosesAt,
		"delay":     delay,
	}).Info("monthly archive deferred until the month closes")
}
