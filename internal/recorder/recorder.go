package recorder

import (
	"context"
	"time"

	"ClassFund/internal/model"

	"github.com/shopspring/decimal"
)

// Ledger is the append-only store of monetary entries. Entries are never
// edited; Clear is the only destructive operation and wipes everything.
type Ledger interface {
	Append(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, error)
	// AppendBatch writes all entries or none.
	AppendBatch(ctx context.Context, entries []model.LedgerEntry) ([]model.LedgerEntry, error)
	// Contributions returns a member's contribution entries created on the
	// calendar days from..through (inclusive, UTC), oldest first.
	Contributions(ctx context.Context, memberID string, from, through time.Time) ([]model.LedgerEntry, error)
	// ContributionsBetween returns every contribution created in [from, until),
	// grouped by member, read in a single transaction.
	ContributionsBetween(ctx context.Context, from, until time.Time) (map[string][]model.LedgerEntry, error)
	Sum(ctx context.Context, filter SumFilter) (decimal.Decimal, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
	Clear(ctx context.Context) (int64, error)
}

// SumFilter narrows Ledger.Sum. Empty fields match everything.
type SumFilter struct {
	MemberID string
	Kind     model.EntryKind
}

// ConfigStore persists the single active PeriodConfig.
type ConfigStore interface {
	// LoadPeriodConfig returns model.ErrConfigurationMissing when none is set.
	LoadPeriodConfig(ctx context.Context) (model.PeriodConfig, error)
	SavePeriodConfig(ctx context.Context, cfg model.PeriodConfig) error
}

// ArchiveStore holds monthly snapshots, unique per member and month.
type ArchiveStore interface {
	// InsertSnapshot returns model.ErrDuplicateArchive if the key exists.
	InsertSnapshot(ctx context.Context, snap model.MonthlyArchiveSnapshot) error
	ListSnapshots(ctx context.Context, filter model.ArchiveFilter) ([]model.MonthlyArchiveSnapshot, error)
}

// MemberDirectory lists fund members.
type MemberDirectory interface {
	ListMembers(ctx context.Context, activeOnly bool) ([]model.Member, error)
}
