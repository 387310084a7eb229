// Package sequence issues the strictly monotonic order ids shared by all
// books. Ids are never reused, and are capped to 48 bits so they stay
// representable in external interfaces that reserve the upper bits.
package sequence

import "sync/atomic"

// MaxID is the largest id the sequencer will ever hand out.
const MaxID = (uint64(1) << 48) - 1

// Sequencer generates strictly monotonic ids. It is deterministic and
// replay-safe: after journal replay it is Reset to the last replayed id.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer. start is 0 on a fresh boot, or the last
// replayed id after recovery.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next id. It panics once the 48-bit space is exhausted;
// at that point the deployment has a much bigger problem than a panic.
func (s *Sequencer) Next() uint64 {
	id := s.next.Add(1)
	if id > MaxID {
		panic("sequence: order id space exhausted")
	}
	return id
}

// Current returns the last issued id.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reset sets the sequencer to a specific value. Only used after replay.
func (s *Sequencer) Reset(v uint64) {
	s.next.Store(v)
}
