package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"scalex/domain/orderbook"
)

var (
	owner = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	other = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

func TestLockUnlock(t *testing.T) {
	l := New()
	l.Deposit(owner, "USD", 100)

	require.NoError(t, l.Lock(owner, "USD", 60))
	require.Equal(t, int64(40), l.Available(owner, "USD"))
	require.Equal(t, int64(60), l.Locked(owner, "USD"))

	require.ErrorIs(t, l.Lock(owner, "USD", 50), orderbook.ErrInsufficientBalance)

	require.NoError(t, l.Unlock(owner, "USD", 60))
	require.Equal(t, int64(100), l.Available(owner, "USD"))
	require.ErrorIs(t, l.Unlock(owner, "USD", 1), orderbook.ErrInsufficientBalance)
}

func TestTransferLocked(t *testing.T) {
	l := New()
	l.Deposit(owner, "USD", 100)
	require.NoError(t, l.Lock(owner, "USD", 100))

	require.NoError(t, l.TransferLocked(owner, other, "USD", 70))
	require.Equal(t, int64(30), l.Locked(owner, "USD"))
	require.Equal(t, int64(70), l.Available(other, "USD"))

	require.ErrorIs(t, l.TransferLocked(owner, other, "USD", 40), orderbook.ErrInsufficientBalance)
}

func TestBorrowAgainstCreditLine(t *testing.T) {
	l := New()
	l.SetCreditLine(owner, "USD", 100)

	require.NoError(t, l.CanBorrow(owner, "USD", 100))
	require.ErrorIs(t, l.CanBorrow(owner, "USD", 101), orderbook.ErrInsufficientHealthFactor)

	require.NoError(t, l.BorrowForUser(owner, "USD", 80))
	require.Equal(t, int64(80), l.Available(owner, "USD"))
	require.Equal(t, int64(80), l.DebtOf(owner, "USD"))

	// Outstanding debt counts against the line.
	require.ErrorIs(t, l.CanBorrow(owner, "USD", 30), orderbook.ErrInsufficientHealthFactor)
	require.ErrorIs(t, l.BorrowForUser(owner, "USD", 30), orderbook.ErrInsufficientHealthFactor)
	require.NoError(t, l.BorrowForUser(owner, "USD", 20))
}

func TestRepayCapsAtDebtAndBalance(t *testing.T) {
	l := New()
	l.SetCreditLine(owner, "USD", 100)
	require.NoError(t, l.BorrowForUser(owner, "USD", 50))

	// Repay more than owed: only the debt is cleared.
	l.Deposit(owner, "USD", 100)
	repaid, err := l.RepayForUser(owner, "USD", 200)
	require.NoError(t, err)
	require.Equal(t, int64(50), repaid)
	require.Zero(t, l.DebtOf(owner, "USD"))
	require.Equal(t, int64(100), l.Available(owner, "USD"))

	// No debt: a no-op.
	repaid, err = l.RepayForUser(owner, "USD", 10)
	require.NoError(t, err)
	require.Zero(t, repaid)
}

func TestRepayLimitedByAvailable(t *testing.T) {
	l := New()
	l.SetCreditLine(owner, "USD", 100)
	require.NoError(t, l.BorrowForUser(owner, "USD", 50))
	require.NoError(t, l.Lock(owner, "USD", 40)) // only 10 stays available

	repaid, err := l.RepayForUser(owner, "USD", 50)
	require.NoError(t, err)
	require.Equal(t, int64(10), repaid)
	require.Equal(t, int64(40), l.DebtOf(owner, "USD"))
}
