// Package ledger is the in-memory implementation of the balance-custody
// and lending collaborators. The matching service talks to it through
// one-shot instructions (lock, unlock, transfer, borrow, repay); it owns
// its own state and lock.
package ledger

import (
	"sync"

	"github.com/google/uuid"

	"scalex/domain/orderbook"
)

type account struct {
	owner uuid.UUID
	asset string
}

type Ledger struct {
	mu        sync.Mutex
	available map[account]int64
	locked    map[account]int64
	debt      map[account]int64
	credit    map[account]int64 // borrowing capacity per owner and asset
}

func New() *Ledger {
	return &Ledger{
		available: make(map[account]int64),
		locked:    make(map[account]int64),
		debt:      make(map[account]int64),
		credit:    make(map[account]int64),
	}
}

// Deposit credits available balance.
func (l *Ledger) Deposit(owner uuid.UUID, asset string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.available[account{owner, asset}] += amount
}

// SetCreditLine sets the borrowing capacity for one owner and asset.
func (l *Ledger) SetCreditLine(owner uuid.UUID, asset string, limit int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit[account{owner, asset}] = limit
}

func (l *Ledger) Available(owner uuid.UUID, asset string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available[account{owner, asset}]
}

func (l *Ledger) Locked(owner uuid.UUID, asset string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked[account{owner, asset}]
}

func (l *Ledger) DebtOf(owner uuid.UUID, asset string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debt[account{owner, asset}]
}

// Lock moves amount from available to locked.
func (l *Ledger) Lock(owner uuid.UUID, asset string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := account{owner, asset}
	if l.available[k] < amount {
		return orderbook.ErrInsufficientBalance
	}
	l.available[k] -= amount
	l.locked[k] += amount
	return nil
}

// Unlock moves amount from locked back to available.
func (l *Ledger) Unlock(owner uuid.UUID, asset string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := account{owner, asset}
	if l.locked[k] < amount {
		return orderbook.ErrInsufficientBalance
	}
	l.locked[k] -= amount
	l.available[k] += amount
	return nil
}

// TransferLocked settles one leg of a fill: amount leaves the payer's
// locked balance and lands in the receiver's available balance.
func (l *Ledger) TransferLocked(from, to uuid.UUID, asset string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	fk := account{from, asset}
	if l.locked[fk] < amount {
		return orderbook.ErrInsufficientBalance
	}
	l.locked[fk] -= amount
	l.available[account{to, asset}] += amount
	return nil
}

// CanBorrow reports whether total (outstanding debt plus the candidate
// amount) stays within the owner's credit line. total is cumulative: the
// dry-run pass calls it with the sum of everything it plans to borrow.
func (l *Ledger) CanBorrow(owner uuid.UUID, asset string, total int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := account{owner, asset}
	if l.debt[k]+total > l.credit[k] {
		return orderbook.ErrInsufficientHealthFactor
	}
	return nil
}

// BorrowForUser draws amount against the owner's credit line and credits
// it as available balance.
func (l *Ledger) BorrowForUser(owner uuid.UUID, asset string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := account{owner, asset}
	if l.debt[k]+amount > l.credit[k] {
		return orderbook.ErrInsufficientHealthFactor
	}
	l.debt[k] += amount
	l.available[k] += amount
	return nil
}

// RepayForUser applies up to amount of available balance against the
// owner's outstanding debt and returns how much was actually repaid.
func (l *Ledger) RepayForUser(owner uuid.UUID, asset string, amount int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := account{owner, asset}
	repay := min(amount, l.debt[k])
	if repay == 0 {
		return 0, nil
	}
	if l.available[k] < repay {
		repay = l.available[k]
	}
	l.available[k] -= repay
	l.debt[k] -= repay
	return repay, nil
}
