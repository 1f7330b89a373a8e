package fund

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ClassFund/internal/calendar"
	"ClassFund/internal/model"
	"ClassFund/internal/recorder"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Manager owns the fund's single active PeriodConfig.
type Manager struct {
	mu     sync.Mutex
	store  recorder.ConfigStore
	cached *model.PeriodConfig
	log    logrus.FieldLogger
}

// NewManager creates a Manager. When the store holds no config yet and seed
// is non-nil, seed is persisted as the initial config.
func NewManager(ctx context.Context, store recorder.ConfigStore, seed *model.PeriodConfig, log logrus.FieldLogger) (*Manager, error) {
	m := &Manager{store: store, log: log}

	cfg, err := store.LoadPeriodConfig(ctx)
	switch {
	case err == nil:
		m.cached = &cfg
	case errors.Is(err, model.ErrConfigurationMissing) && seed != nil:
		if _, err := m.SetPeriodConfig(ctx, &seed.AnchorDate, &seed.ContributionAmount); err != nil {
			return nil, fmt.Errorf("seed period config: %w", err)
		}
		log.WithFields(logrus.Fields{
			"anchor_date": seed.AnchorDate.Format(time.DateOnly),
			"amount":      seed.ContributionAmount.String(),
		}).Info("period config seeded")
	case errors.Is(err, model.ErrConfigurationMissing):
		log.Warn("no period config stored; allocation and status are unavailable until one is set")
	default:
		return nil, err
	}
	return m, nil
}

// GetPeriodConfig returns the active config or model.ErrConfigurationMissing.
func (m *Manager) GetPeriodConfig(ctx context.Context) (model.PeriodConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil {
		return *m.cached, nil
	}
	cfg, err := m.store.LoadPeriodConfig(ctx)
	if err != nil {
		return model.PeriodConfig{}, err
	}
	m.cached = &cfg
	return cfg, nil
}

// SetPeriodConfig changes the anchor date, the contribution amount, or both.
// Nil arguments keep the current value; with no config stored yet both are
// required.
func (m *Manager) SetPeriodConfig(ctx context.Context, anchor *time.Time, amount *decimal.Decimal) (model.PeriodConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var next model.PeriodConfig
	if m.cached != nil {
		next = *m.cached
	} else {
		current, err := m.store.LoadPeriodConfig(ctx)
		switch {
		case err == nil:
			next = current
		case errors.Is(err, model.ErrConfigurationMissing):
			if anchor == nil || amount == nil {
				return model.PeriodConfig{}, fmt.Errorf("%w: anchor date and amount are both required", model.ErrConfigurationMissing)
			}
		default:
			return model.PeriodConfig{}, err
		}
	}

	if anchor != nil {
		next.AnchorDate = calendar.Day(*anchor)
	}
	if amount != nil {
		if !amount.IsPositive() {
			return model.PeriodConfig{}, fmt.Errorf("%w: contribution amount must be positive, got %s", model.ErrInvalidAmount, amount)
		}
		next.ContributionAmount = *amount
	}
	next.UpdatedAt = time.Now().UTC()

	if err := m.store.SavePeriodConfig(ctx, next); err != nil {
		return model.PeriodConfig{}, err
	}
	m.cached = &next
	m.log.WithFields(logrus.Fields{
		"anchor_date": next.AnchorDate.Format(time.DateOnly),
		"amount":      next.ContributionAmount.String(),
	}).Info("period config updated")
	return next, nil
}
