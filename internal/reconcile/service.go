package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ClassFund/internal/calendar"
	"ClassFund/internal/model"
	"ClassFund/internal/recorder"

	"github.com/sirupsen/logrus"
)

// ConfigSource provides the active period config.
type ConfigSource interface {
	GetPeriodConfig(ctx context.Context) (model.PeriodConfig, error)
}

// ContributionReader reads a member's contribution window.
type ContributionReader interface {
	Contributions(ctx context.Context, memberID string, from, through time.Time) ([]model.LedgerEntry, error)
}

// Service runs reconciliation against the stores.
type Service struct {
	Config  ConfigSource
	Ledger  ContributionReader
	Members recorder.MemberDirectory
	Log     logrus.FieldLogger
}

// NewService creates a Service.
func NewService(cfg ConfigSource, ledger ContributionReader, members recorder.MemberDirectory, log logrus.FieldLogger) *Service {
	return &Service{Config: cfg, Ledger: ledger, Members: members, Log: log}
}

func asUnavailable(op string, err error) error {
	if errors.Is(err, model.ErrDataUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrDataUnavailable, err)
}

// PeriodsThrough returns the active config and every period elapsed by through.
func (s *Service) PeriodsThrough(ctx context.Context, through time.Time) (model.PeriodConfig, []model.Period, error) {
	cfg, err := s.Config.GetPeriodConfig(ctx)
	if err != nil {
		return model.PeriodConfig{}, nil, err
	}
	return cfg, calendar.PeriodsFrom(cfg.AnchorDate, through), nil
}

// ReconcileMember fetches the member's contributions over the span of
// periods and reconciles them.
func (s *Service) ReconcileMember(ctx context.Context, memberID string, periods []model.Period) ([]model.PeriodStatus, error) {
	cfg, err := s.Config.GetPeriodConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s.reconcileMember(ctx, cfg, memberID, periods)
}

func (s *Service) reconcileMember(ctx context.Context, cfg model.PeriodConfig, memberID string, periods []model.Period) ([]model.PeriodStatus, error) {
	if len(periods) == 0 {
		return []model.PeriodStatus{}, nil
	}
	window, err := s.Ledger.Contributions(ctx, memberID, periods[0].Start, periods[len(periods)-1].End)
	if err != nil {
		return nil, asUnavailable("reconcile member "+memberID, err)
	}
	return Reconcile(cfg.ContributionAmount, memberID, periods, window), nil
}

// ReconcileAll reconciles every active member over periods. Any member whose
// window cannot be read fails the whole call.
func (s *Service) ReconcileAll(ctx context.Context, periods []model.Period) ([]model.MemberStatus, error) {
	cfg, err := s.Config.GetPeriodConfig(ctx)
	if err != nil {
		return nil, err
	}
	members, err := s.Members.ListMembers(ctx, true)
	if err != nil {
		return nil, asUnavailable("list members", err)
	}

	out := make([]model.MemberStatus, 0, len(members))
	for _, m := range members {
		statuses, err := s.reconcileMember(ctx, cfg, m.ID, periods)
		if err != nil {
			s.Log.WithField("member_id", m.ID).WithError(err).Error("reconcile failed")
			return nil, err
		}
		out = append(out, model.MemberStatus{
			Member:  m,
			Periods: statuses,
			Summary: OverallStatus(statuses),
		})
	}
	return out, nil
}

// StatusAsOf reconciles every active member over all periods elapsed by through.
func (s *Service) StatusAsOf(ctx context.Context, through time.Time) ([]model.MemberStatus, error) {
	_, periods, err := s.PeriodsThrough(ctx, through)
	if err != nil {
		return nil, err
	}
	return s.ReconcileAll(ctx, periods)
}

// WeeklyStatus is the legacy ISO-week view of one member over [from, through].
func (s *Service) WeeklyStatus(ctx context.Context, memberID string, from, through time.Time) ([]WeekStatus, error) {
	cfg, err := s.Config.GetPeriodConfig(ctx)
	if err != nil {
		return nil, err
	}
	weeks := calendar.ISOWeeksBetween(from, through)
	if len(weeks) == 0 {
		return nil, fmt.Errorf("%w: %s is before %s", model.ErrInvalidPeriodRange,
			through.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	start, _ := weeks[0].Range()
	_, end := weeks[len(weeks)-1].Range()
	window, err := s.Ledger.Contributions(ctx, memberID, start, end)
	if err != nil {
		return nil, asUnavailable("weekly status "+memberID, err)
	}
	return ReconcileISOWeeks(cfg.ContributionAmount, memberID, weeks, window), nil
}
