package outbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGetRoundtrip(t *testing.T) {
	ob, err := Open(t.TempDir())
	require.NoError(t, err)
	defer ob.Close()

	require.NoError(t, ob.Put(1, []byte("hello")))
	e, err := ob.Get(1)
	require.NoError(t, err)
	require.Equal(t, StateNew, e.State)
	require.Equal(t, []byte("hello"), e.Payload)
	require.Zero(t, e.Retries)
}

func TestStateTransitions(t *testing.T) {
	ob, err := Open(t.TempDir())
	require.NoError(t, err)
	defer ob.Close()

	require.NoError(t, ob.Put(7, []byte("x")))
	require.NoError(t, ob.UpdateState(7, StateSent, 1))

	e, err := ob.Get(7)
	require.NoError(t, err)
	require.Equal(t, StateSent, e.State)
	require.Equal(t, uint32(1), e.Retries)
	require.NotZero(t, e.LastAttempt)

	require.NoError(t, ob.UpdateState(7, StateAcked, 1))
	require.NoError(t, ob.Delete(7))
	_, err = ob.Get(7)
	require.Error(t, err)
}

func TestScanByStateInSequenceOrder(t *testing.T) {
	ob, err := Open(t.TempDir())
	require.NoError(t, err)
	defer ob.Close()

	for _, seq := range []uint64{30, 10, 20} {
		require.NoError(t, ob.Put(seq, []byte{byte(seq)}))
	}
	require.NoError(t, ob.UpdateState(20, StateAcked, 1))

	var seen []uint64
	require.NoError(t, ob.ScanByState(StateNew, func(seq uint64, e Entry) error {
		seen = append(seen, seq)
		return nil
	}))
	require.Equal(t, []uint64{10, 30}, seen)
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	ob, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, ob.Put(5, []byte("durable")))
	require.NoError(t, ob.Close())

	ob2, err := Open(dir)
	require.NoError(t, err)
	defer ob2.Close()
	e, err := ob2.Get(5)
	require.NoError(t, err)
	require.Equal(t, []byte("durable"), e.Payload)
}
