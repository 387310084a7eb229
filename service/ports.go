// Package service is the only write entry point into the matching
// engine: the Router validates caller input, locks funds, serializes all
// operations per pool, invokes the book, and turns match results into
// settlement transfers and public events.
package service

import (
	"github.com/google/uuid"

	"scalex/infra/journal"
)

// Balances is the custody collaborator. It owns balance state and is
// invoked through one-shot instructions; the router never holds a lock
// across calls.
type Balances interface {
	Lock(owner uuid.UUID, asset string, amount int64) error
	Unlock(owner uuid.UUID, asset string, amount int64) error
	TransferLocked(from, to uuid.UUID, asset string, amount int64) error
}

// Lender is the margin collaborator. CanBorrow takes the cumulative
// amount a dry-run plans to draw, so capacity is checked once for the
// whole pass, not fill by fill.
type Lender interface {
	CanBorrow(owner uuid.UUID, asset string, total int64) error
	BorrowForUser(owner uuid.UUID, asset string, amount int64) error
	RepayForUser(owner uuid.UUID, asset string, amount int64) (int64, error)
	DebtOf(owner uuid.UUID, asset string) int64
}

// CommandLog is the append-only command journal.
type CommandLog interface {
	Append(*journal.Record) error
}

// EventSink receives every public event, durably, before broadcast.
type EventSink interface {
	Put(seq uint64, payload []byte) error
}
