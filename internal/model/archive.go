package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyArchiveSnapshot is the frozen monthly summary of one member.
// It is written once per (MemberID, Year, Month).
type MonthlyArchiveSnapshot struct {
	MemberID             string
	Year                 int
	Month                time.Month
	TotalAttributed      decimal.Decimal
	PeriodsPaidCount     int
	CompletionPercentage int
	OverallState         string
	ArchivedAt           time.Time
}

// ArchiveEventType identifies events emitted by the archival scheduler.
const ArchiveEventType = "monthly_archive_completed"

// ArchiveEvent is sent to the notification collaborator after a run.
type ArchiveEvent struct {
	Type            string
	Year            int
	Month           time.Month
	MemberCount     int
	AlreadyArchived int
	FailedMemberIDs []string
}

// ArchiveFilter selects snapshots. Zero values match everything.
type ArchiveFilter struct {
	MemberID string
	Year     int
	Month    time.Month
}
