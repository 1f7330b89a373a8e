package reconcile

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"ClassFund/internal/calendar"
	"ClassFund/internal/model"
	"ClassFund/internal/recorder"

	"github.com/sirupsen/logrus"
)

type staticConfig struct {
	cfg model.PeriodConfig
	err error
}

func (s staticConfig) GetPeriodConfig(context.Context) (model.PeriodConfig, error) { return s.cfg, s.err }

type brokenLedger struct{}

func (brokenLedger) Contributions(context.Context, string, time.Time, time.Time) ([]model.LedgerEntry, error) {
	return nil, errors.New("disk I/O error")
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newService(t *testing.T) (*Service, *recorder.SQLiteStore) {
	t.Helper()
	store, err := recorder.NewSQLiteStore(filepath.Join(t.TempDir(), "fund.db"), time.Second, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	for _, m := range []model.Member{{ID: "m1", Name: "Ani", Active: true}, {ID: "m2", Name: "Budi", Active: true}} {
		if err := store.UpsertMember(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	cfg := staticConfig{cfg: model.PeriodConfig{AnchorDate: anchor, ContributionAmount: expected}}
	return NewService(cfg, store, store, quietLogger()), store
}

func TestService_ReconcileAll(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	if _, err := store.AppendBatch(ctx, []model.LedgerEntry{
		entry("m1", 3000, day(time.January, 7, 10)),
		entry("m1", 3000, day(time.January, 14, 10)),
	}); err != nil {
		t.Fatal(err)
	}

	statuses, err := svc.StatusAsOf(ctx, day(time.January, 19, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 members, got %d", len(statuses))
	}
	if statuses[0].Member.ID != "m1" || statuses[0].Summary.OverallState != model.OverallFullyPaid {
		t.Errorf("m1: %+v", statuses[0].Summary)
	}
	if statuses[1].Summary.OverallState != model.OverallUnpaid || statuses[1].Summary.CompletionPercentage != 0 {
		t.Errorf("m2: %+v", statuses[1].Summary)
	}

	// Bulk and single-member calls agree.
	single, err := svc.ReconcileMember(ctx, "m1", calendar.PeriodsFrom(anchor, day(time.January, 19, 0)))
	if err != nil {
		t.Fatal(err)
	}
	for i := range single {
		if !single[i].AmountAttributed.Equal(statuses[0].Periods[i].AmountAttributed) || single[i].State != statuses[0].Periods[i].State {
			t.Errorf("period %d differs between single and bulk reconcile", i+1)
		}
	}
}

func TestService_FundNotStarted(t *testing.T) {
	svc, _ := newService(t)
	statuses, err := svc.StatusAsOf(context.Background(), day(time.January, 1, 0))
	if err != nil {
		t.Fatal(err)
	}
	for _, st := range statuses {
		if st.Summary.TotalPeriods != 0 || st.Summary.OverallState != model.OverallUnpaid {
			t.Errorf("%s: %+v", st.Member.ID, st.Summary)
		}
	}
}

func TestService_DataUnavailable(t *testing.T) {
	svc, _ := newService(t)
	svc.Ledger = brokenLedger{}
	periods := calendar.PeriodsFrom(anchor, day(time.January, 19, 0))

	got, err := svc.ReconcileMember(context.Background(), "m1", periods)
	if !errors.Is(err, model.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if got != nil {
		t.Error("failed reconcile must not return statuses")
	}
	if _, err := svc.ReconcileAll(context.Background(), periods); !errors.Is(err, model.ErrDataUnavailable) {
		t.Errorf("bulk: expected ErrDataUnavailable, got %v", err)
	}
}

func TestService_ConfigurationMissing(t *testing.T) {
	svc, _ := newService(t)
	svc.Config = staticConfig{err: model.ErrConfigurationMissing}
	if _, err := svc.StatusAsOf(context.Background(), time.Now()); !errors.Is(err, model.ErrConfigurationMissing) {
		t.Errorf("expected ErrConfigurationMissing, got %v", err)
	}
}

func TestService_WeeklyStatus(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	if _, err := store.Append(ctx, entry("m1", 3000, day(time.January, 15, 10))); err != nil {
		t.Fatal(err)
	}
	weeks, err := svc.WeeklyStatus(ctx, "m1", day(time.January, 6, 0), day(time.January, 19, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(weeks) != 2 || weeks[0].State != model.StateUnpaid || weeks[1].State != model.StatePaid {
		t.Errorf("unexpected weekly view %+v", weeks)
	}
	if _, err := svc.WeeklyStatus(ctx, "m1", day(time.January, 19, 0), day(time.January, 6, 0)); !errors.Is(err, model.ErrInvalidPeriodRange) {
		t.Errorf("expected ErrInvalidPeriodRange, got %v", err)
	}
}
