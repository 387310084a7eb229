package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"scalex/domain/orderbook"
	"scalex/infra/journal"
)

// scriptedSettler replays a journaled match outcome: exactly the pairings
// the original submit produced are allowed, so pairings the original run
// skipped are refused again and the walk reproduces the same fills.
type scriptedSettler struct {
	allow map[uint64]int64
}

func (s scriptedSettler) Reset() {}

func (s scriptedSettler) Prepare(_ *orderbook.Order, f orderbook.Fill) error {
	if s.allow[f.MakerOrder] < f.Quantity {
		return orderbook.ErrInsufficientBalance
	}
	return nil
}

func (s scriptedSettler) Commit(_ *orderbook.Order, f orderbook.Fill) error {
	s.allow[f.MakerOrder] -= f.Quantity
	return nil
}

func clockAt(ns int64) func() time.Time {
	return func() time.Time { return time.Unix(0, ns) }
}

// Replay rebuilds book state from the command journal. Each journaled
// place carries the id the book originally assigned and the fills the
// match produced; the sequencer is rewound before every submit and the
// book clock is pinned to the record's time, so the rebuilt book hands
// out identical ids and reproduces expiry and skip decisions. Ledger
// balances are not re-run; the per-order fund pots are derived from the
// rebuilt resting orders afterwards.
func (r *Router) Replay(dir string) error {
	lastSeq, err := journal.Replay(dir, func(rec *journal.Record) error {
		switch rec.Type {
		case journal.RecordPlace:
			return r.replayPlace(rec.Time, rec.Data)
		case journal.RecordCancel:
			return r.replayCancel(rec.Time, rec.Data)
		default:
			return fmt.Errorf("journal: unknown record type %d", rec.Type)
		}
	})
	for _, ps := range r.pools {
		ps.book.SetClock(time.Now)
	}
	if err != nil {
		return err
	}
	r.rebuildLocks()
	r.journalSeq = lastSeq
	if lastSeq > 0 {
		r.log.Info("journal replay complete",
			zap.Uint64("records", lastSeq),
			zap.Uint64("last_order_id", r.seq.Current()))
	}
	return nil
}

func (r *Router) replayPlace(at int64, data []byte) error {
	cmd, err := journal.DecodePlace(data)
	if err != nil {
		return err
	}
	ps := r.pools[cmd.PoolID]
	if ps == nil {
		// Pool removed from the registry since the journal was written.
		r.log.Warn("replay: skipping order for unknown pool",
			zap.String("pool", cmd.PoolID), zap.Uint64("order", cmd.OrderID))
		return nil
	}

	allow := make(map[uint64]int64, len(cmd.Fills))
	for _, f := range cmd.Fills {
		allow[f.MakerOrder] += f.Quantity
	}

	r.seq.Reset(cmd.OrderID - 1)
	ps.book.SetClock(clockAt(at))
	_, err = ps.book.Submit(orderbook.Incoming{
		Owner:      cmd.Owner,
		Side:       orderbook.Side(cmd.Side),
		Type:       orderbook.OrderType(cmd.Type),
		TIF:        orderbook.TimeInForce(cmd.TIF),
		Price:      cmd.Price,
		Quantity:   cmd.Quantity,
		Expiry:     cmd.Expiry,
		AutoBorrow: cmd.AutoBorrow,
		AutoRepay:  cmd.AutoRepay,
	}, scriptedSettler{allow: allow})
	if err != nil {
		// The command was accepted when journaled; a rejection now means
		// the journal and the matching rules disagree.
		return fmt.Errorf("replay: order %d rejected: %w", cmd.OrderID, err)
	}
	return nil
}

func (r *Router) replayCancel(at int64, data []byte) error {
	cmd, err := journal.DecodeCancel(data)
	if err != nil {
		return err
	}
	ps := r.pools[cmd.PoolID]
	if ps == nil {
		return nil
	}
	o, err := ps.book.Order(cmd.OrderID)
	if err != nil {
		r.log.Warn("replay: cancel target missing",
			zap.String("pool", cmd.PoolID), zap.Uint64("order", cmd.OrderID))
		return nil
	}
	ps.book.SetClock(clockAt(at))
	if _, err := ps.book.Cancel(cmd.OrderID, o.Owner, false); err != nil {
		r.log.Warn("replay: cancel failed",
			zap.Uint64("order", cmd.OrderID), zap.Error(err))
	}
	return nil
}

// rebuildLocks derives the fund pot of every resting order from its
// remaining quantity. The ledger keeps the locked balances themselves
// across restarts; the per-order split is deterministic, so it is
// recomputed instead of journaled.
func (r *Router) rebuildLocks() {
	for _, ps := range r.pools {
		cfg := ps.book.Config()
		ps.book.EachResting(func(o orderbook.Order) bool {
			ps.locks[o.ID] = &orderLock{
				asset:  payAsset(cfg, o.Side),
				amount: requiredFor(cfg, o.Side, o.Price, o.Remaining()),
			}
			return true
		})
	}
}
