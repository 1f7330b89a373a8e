package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ClassFund/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const defaultOpTimeout = 5 * time.Second

// SQLiteStore implements Ledger, ConfigStore, ArchiveStore and
// MemberDirectory on a single SQLite database.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.Mutex
	opTimeout time.Duration
	log       logrus.FieldLogger
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
// opTimeout bounds every read and write; zero selects a default.
func NewSQLiteStore(dbPath string, opTimeout time.Duration, log logrus.FieldLogger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets status reads proceed while the allocator or archiver writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	s := &SQLiteStore{db: db, opTimeout: opTimeout, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.WithField("path", dbPath).Info("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id         TEXT PRIMARY KEY,
			member_id  TEXT,
			kind       TEXT NOT NULL,
			amount     TEXT NOT NULL,
			note       TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_member_kind_ts ON ledger_entries(member_id, kind, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_kind_ts ON ledger_entries(kind, created_at)`,

		`CREATE TABLE IF NOT EXISTS period_config (
			id                  INTEGER PRIMARY KEY CHECK (id = 1),
			anchor_date         TEXT NOT NULL,
			contribution_amount TEXT NOT NULL,
			updated_at          INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS monthly_archive (
			id                    INTEGER PRIMARY KEY AUTOINCREMENT,
			member_id             TEXT NOT NULL,
			year                  INTEGER NOT NULL,
			month                 INTEGER NOT NULL,
			total_attributed      TEXT NOT NULL,
			periods_paid_count    INTEGER NOT NULL,
			completion_percentage INTEGER NOT NULL,
			overall_state         TEXT NOT NULL,
			archived_at           INTEGER NOT NULL,
			UNIQUE (member_id, year, month)
		)`,

		`CREATE TABLE IF NOT EXISTS members (
			id     TEXT PRIMARY KEY,
			name   TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmtPreview(stmt), err)
		}
	}
	return nil
}

func stmtPreview(stmt string) string {
	return stmt[:min(len(stmt), 40)]
}

func (s *SQLiteStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrDataUnavailable, err)
}

func dayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func nullable(memberID string) any {
	if memberID == "" {
		return nil
	}
	return memberID
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func prepareEntry(e model.LedgerEntry) (model.LedgerEntry, error) {
	if !e.Kind.Valid() {
		return e, fmt.Errorf("%w: unknown entry kind %q", model.ErrInvalidAmount, e.Kind)
	}
	if e.Amount.IsNegative() {
		return e, fmt.Errorf("%w: negative amount %s", model.ErrInvalidAmount, e.Amount)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func (s *SQLiteStore) Append(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, error) {
	out, err := s.AppendBatch(ctx, []model.LedgerEntry{entry})
	if err != nil {
		return model.LedgerEntry{}, err
	}
	return out[0], nil
}

func (s *SQLiteStore) AppendBatch(ctx context.Context, entries []model.LedgerEntry) ([]model.LedgerEntry, error) {
	prepared := make([]model.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		p, err := prepareEntry(e)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin append", err)
	}
	defer tx.Rollback()

	for _, e := range prepared {
		if _, err := tx.ExecContext(ctx, `INSERT INTO ledger_entries
			(id, member_id, kind, amount, note, created_at)
			VALUES (?,?,?,?,?,?)`,
			e.ID, nullable(e.MemberID), string(e.Kind), e.Amount.String(), e.Note, e.CreatedAt.UnixNano(),
		); err != nil {
			return nil, unavailable("insert ledger entry", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit append", err)
	}
	return prepared, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanEntries(ctx context.Context, q queryer, query string, args ...any) ([]model.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query ledger", err)
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		var (
			e        model.LedgerEntry
			memberID sql.NullString
			kind     string
			amount   string
			ts       int64
		)
		if err := rows.Scan(&e.ID, &memberID, &kind, &amount, &e.Note, &ts); err != nil {
			return nil, unavailable("scan ledger entry", err)
		}
		e.MemberID = memberID.String
		e.Kind = model.EntryKind(kind)
		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, unavailable("parse amount of entry "+e.ID, err)
		}
		e.CreatedAt = time.Unix(0, ts).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate ledger", err)
	}
	return out, nil
}

const entryColumns = `id, member_id, kind, amount, note, created_at`

func (s *SQLiteStore) Contributions(ctx context.Context, memberID string, from, through time.Time) ([]model.LedgerEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	lo := dayStart(from).UnixNano()
	hi := dayStart(through).AddDate(0, 0, 1).UnixNano()
	return scanEntries(ctx, s.db, `SELECT `+entryColumns+` FROM ledger_entries
		WHERE member_id = ? AND kind = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at, id`,
		memberID, string(model.KindContribution), lo, hi)
}

func (s *SQLiteStore) ContributionsBetween(ctx context.Context, from, until time.Time) (map[string][]model.LedgerEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin snapshot read", err)
	}
	defer tx.Rollback()

	entries, err := scanEntries(ctx, tx, `SELECT `+entryColumns+` FROM ledger_entries
		WHERE kind = ? AND member_id IS NOT NULL AND created_at >= ? AND created_at < ?
		ORDER BY created_at, id`,
		string(model.KindContribution), from.UTC().UnixNano(), until.UTC().UnixNano())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit snapshot read", err)
	}

	byMember := make(map[string][]model.LedgerEntry)
	for _, e := range entries {
		byMember[e.MemberID] = append(byMember[e.MemberID], e)
	}
	return byMember, nil
}

func (s *SQLiteStore) Sum(ctx context.Context, filter SumFilter) (decimal.Decimal, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		where []string
		args  []any
	)
	if filter.MemberID != "" {
		where = append(where, "member_id = ?")
		args = append(args, filter.MemberID)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	query := `SELECT ` + entryColumns + ` FROM ledger_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	entries, err := scanEntries(ctx, s.db, query, args...)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total, nil
}

// Balance is inflows plus contributions minus outflows.
func (s *SQLiteStore) Balance(ctx context.Context) (decimal.Decimal, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	entries, err := scanEntries(ctx, s.db, `SELECT `+entryColumns+` FROM ledger_entries`)
	if err != nil {
		return decimal.Zero, err
	}
	balance := decimal.Zero
	for _, e := range entries {
		if e.Kind == model.KindOutflow {
			balance = balance.Sub(e.Amount)
		} else {
			balance = balance.Add(e.Amount)
		}
	}
	return balance, nil
}

// Clear removes every ledger entry. Archive snapshots are untouched.
func (s *SQLiteStore) Clear(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM ledger_entries`)
	if err != nil {
		return 0, unavailable("clear ledger", err)
	}
	n, _ := res.RowsAffected()
	s.log.WithField("entries", n).Warn("ledger cleared")
	return n, nil
}

func (s *SQLiteStore) LoadPeriodConfig(ctx context.Context) (model.PeriodConfig, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		anchor, amount string
		updated        int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT anchor_date, contribution_amount, updated_at FROM period_config WHERE id = 1`,
	).Scan(&anchor, &amount, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PeriodConfig{}, model.ErrConfigurationMissing
	}
	if err != nil {
		return model.PeriodConfig{}, unavailable("load period config", err)
	}

	cfg := model.PeriodConfig{UpdatedAt: time.Unix(0, updated).UTC()}
	if cfg.AnchorDate, err = time.Parse(time.DateOnly, anchor); err != nil {
		return model.PeriodConfig{}, unavailable("parse anchor date", err)
	}
	if cfg.ContributionAmount, err = decimal.NewFromString(amount); err != nil {
		return model.PeriodConfig{}, unavailable("parse contribution amount", err)
	}
	return cfg, nil
}

func (s *SQLiteStore) SavePeriodConfig(ctx context.Context, cfg model.PeriodConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO period_config (id, anchor_date, contribution_amount, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			anchor_date = excluded.anchor_date,
			contribution_amount = excluded.contribution_amount,
			updated_at = excluded.updated_at`,
		dayStart(cfg.AnchorDate).Format(time.DateOnly), cfg.ContributionAmount.String(), cfg.UpdatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return unavailable("save period config", err)
	}
	return nil
}

func (s *SQLiteStore) InsertSnapshot(ctx context.Context, snap model.MonthlyArchiveSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if snap.ArchivedAt.IsZero() {
		snap.ArchivedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO monthly_archive
		(member_id, year, month, total_attributed, periods_paid_count, completion_percentage, overall_state, archived_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(member_id, year, month) DO NOTHING`,
		snap.MemberID, snap.Year, int(snap.Month), snap.TotalAttributed.String(),
		snap.PeriodsPaidCount, snap.CompletionPercentage, snap.OverallState, snap.ArchivedAt.UTC().UnixNano(),
	)
	if err != nil {
		return unavailable("insert archive snapshot", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("insert archive snapshot", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: member %s %04d-%02d", model.ErrDuplicateArchive, snap.MemberID, snap.Year, int(snap.Month))
	}
	return nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, filter model.ArchiveFilter) ([]model.MonthlyArchiveSnapshot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		where []string
		args  []any
	)
	if filter.MemberID != "" {
		where = append(where, "member_id = ?")
		args = append(args, filter.MemberID)
	}
	if filter.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, filter.Year)
	}
	if filter.Month != 0 {
		where = append(where, "month = ?")
		args = append(args, int(filter.Month))
	}
	query := `SELECT member_id, year, month, total_attributed, periods_paid_count,
		completion_percentage, overall_state, archived_at FROM monthly_archive`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY year, month, member_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query archive", err)
	}
	defer rows.Close()

	var out []model.MonthlyArchiveSnapshot
	for rows.Next() {
		var (
			snap  model.MonthlyArchiveSnapshot
			month int
			total string
			stamp int64
		)
		if err := rows.Scan(&snap.MemberID, &snap.Year, &month, &total, &snap.PeriodsPaidCount,
			&snap.CompletionPercentage, &snap.OverallState, &stamp); err != nil {
			return nil, unavailable("scan archive snapshot", err)
		}
		snap.Month = time.Month(month)
		if snap.TotalAttributed, err = decimal.NewFromString(total); err != nil {
			return nil, unavailable("parse archived total", err)
		}
		snap.ArchivedAt = time.Unix(0, stamp).UTC()
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate archive", err)
	}
	return out, nil
}

// UpsertMember creates or renames a member. Member lifecycle belongs to the
// directory; this exists for seeding.
func (s *SQLiteStore) UpsertMember(ctx context.Context, m model.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `INSERT INTO members (id, name, active) VALUES (?,?,?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, active = excluded.active`,
		m.ID, m.Name, boolInt(m.Active))
	if err != nil {
		return unavailable("upsert member", err)
	}
	return nil
}

func (s *SQLiteStore) ListMembers(ctx context.Context, activeOnly bool) ([]model.Member, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT id, name, active FROM members`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable("query members", err)
	}
	defer rows.Close()

	var out []model.Member
	for rows.Next() {
		var m model.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Active); err != nil {
			return nil, unavailable("scan member", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate members", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	s.log.Info("closing sqlite store")
	return s.db.Close()
}
