// Package outbox is the durable event outbox: every public event is
// written here, in order, before anything leaves the process. The
// broadcaster drains NEW entries, publishes them, and advances their
// state, so a crash between commit and publish loses nothing.
package outbox

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Entry is one stored event envelope.
type Entry struct {
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// encoding: [state:1][retries:4][lastAttempt:8][payload]
func encodeEntry(e Entry) []byte {
	buf := make([]byte, 13+len(e.Payload))
	buf[0] = byte(e.State)
	binary.BigEndian.PutUint32(buf[1:5], e.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(e.LastAttempt))
	copy(buf[13:], e.Payload)
	return buf
}

func decodeEntry(b []byte) (Entry, error) {
	if len(b) < 13 {
		return Entry{}, errors.New("outbox: short entry")
	}
	payload := make([]byte, len(b)-13)
	copy(payload, b[13:])
	return Entry{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     payload,
	}, nil
}

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // durability is the whole point
	})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// Put stores a new event payload keyed by its sequence number.
func (o *Outbox) Put(seq uint64, payload []byte) error {
	e := Entry{State: StateNew, Payload: payload}
	return o.db.Set(keyFor(seq), encodeEntry(e), pebble.Sync)
}

// UpdateState rewrites an entry's delivery state after a send attempt.
func (o *Outbox) UpdateState(seq uint64, state State, retries uint32) error {
	e, err := o.Get(seq)
	if err != nil {
		return err
	}
	e.State = state
	e.Retries = retries
	e.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(seq), encodeEntry(e), pebble.Sync)
}

// Delete removes an acknowledged entry.
func (o *Outbox) Delete(seq uint64) error {
	return o.db.Delete(keyFor(seq), pebble.Sync)
}

func (o *Outbox) Get(seq uint64) (Entry, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return Entry{}, err
	}
	defer closer.Close()
	return decodeEntry(val)
}

// ScanByState iterates entries in the given state in sequence order.
func (o *Outbox) ScanByState(state State, fn func(seq uint64, e Entry) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("event/"),
		UpperBound: []byte("event/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		e, err := decodeEntry(iter.Value())
		if err != nil {
			return err
		}
		if e.State != state {
			continue
		}
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(seq, e); err != nil {
			return err
		}
	}
	return iter.Error()
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("event/%020d", seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte("event/"))), "%d", &seq)
	return seq, err
}
