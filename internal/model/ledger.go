package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	KindContribution EntryKind = "contribution"
	KindInflow       EntryKind = "inflow"
	KindOutflow      EntryKind = "outflow"
)

// Valid reports whether k is one of the known entry kinds.
func (k EntryKind) Valid() bool {
	switch k {
	case KindContribution, KindInflow, KindOutflow:
		return true
	}
	return false
}

// LedgerEntry is one immutable monetary record. MemberID is empty for
// fund-level entries.
type LedgerEntry struct {
	ID        string
	MemberID  string
	Kind      EntryKind
	Amount    decimal.Decimal
	Note      string
	CreatedAt time.Time
}

// Member is a fund member as listed by the member directory.
type Member struct {
	ID     string
	Name   string
	Active bool
}
