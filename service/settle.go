package service

import (
	"github.com/google/uuid"

	"scalex/domain/orderbook"
)

// orderLock is the funds pot backing one order: the amount of the payer
// asset still locked for it.
type orderLock struct {
	asset  string
	amount int64
}

type borrowKey struct {
	owner uuid.UUID
	asset string
}

// settleSession implements orderbook.Settler for one submit call. The
// dry-run pass works against shadow counters so it can answer "would this
// fill settle" without touching the ledger; the execution pass draws the
// real borrow and transfer instructions. Both passes see the same
// answers because Reset aligns the shadow with the actual pots.
type settleSession struct {
	bals Balances
	lend Lender
	cfg  orderbook.Config

	owner      uuid.UUID
	side       orderbook.Side
	autoBorrow bool
	autoRepay  bool

	takerPot *orderLock
	locks    map[uint64]*orderLock // resting-order pots of this pool

	spent int64 // taker pot actually consumed by committed fills

	planTakerLeft  int64
	planMakerSpent map[uint64]int64
	planBorrow     map[borrowKey]int64
}

func newSettleSession(
	bals Balances,
	lend Lender,
	cfg orderbook.Config,
	owner uuid.UUID,
	side orderbook.Side,
	autoBorrow, autoRepay bool,
	deposit int64,
	locks map[uint64]*orderLock,
) *settleSession {
	return &settleSession{
		bals:       bals,
		lend:       lend,
		cfg:        cfg,
		owner:      owner,
		side:       side,
		autoBorrow: autoBorrow,
		autoRepay:  autoRepay,
		takerPot:   &orderLock{asset: payAsset(cfg, side), amount: deposit},
		locks:      locks,
	}
}

// payAsset is what a taker on this side spends; the maker receives it.
func payAsset(cfg orderbook.Config, side orderbook.Side) string {
	if side == orderbook.Buy {
		return cfg.QuoteAsset
	}
	return cfg.BaseAsset
}

// recvAsset is what a taker on this side receives; the maker spends it.
func recvAsset(cfg orderbook.Config, side orderbook.Side) string {
	if side == orderbook.Buy {
		return cfg.BaseAsset
	}
	return cfg.QuoteAsset
}

// takerPay is the taker-leg amount of a fill.
func (s *settleSession) takerPay(f orderbook.Fill) int64 {
	if s.side == orderbook.Buy {
		return f.Quote
	}
	return f.Quantity
}

// makerPay is the maker-leg amount of a fill.
func (s *settleSession) makerPay(f orderbook.Fill) int64 {
	if s.side == orderbook.Buy {
		return f.Quantity
	}
	return f.Quote
}

func (s *settleSession) Reset() {
	s.planTakerLeft = s.takerPot.amount
	s.planMakerSpent = make(map[uint64]int64)
	s.planBorrow = make(map[borrowKey]int64)
}

// Prepare answers whether one fill can settle, consuming shadow state
// only. A refusal skips the pairing; for fill-or-kill orders it fails the
// pre-check and aborts the whole order before any mutation.
func (s *settleSession) Prepare(_ *orderbook.Order, f orderbook.Fill) error {
	need := s.takerPay(f)
	takerShort := int64(0)
	if need > s.planTakerLeft {
		takerShort = need - s.planTakerLeft
		if !s.autoBorrow {
			return orderbook.ErrInsufficientBalance
		}
		k := borrowKey{s.owner, payAsset(s.cfg, s.side)}
		if err := s.lend.CanBorrow(k.owner, k.asset, s.planBorrow[k]+takerShort); err != nil {
			return err
		}
	}

	makerNeed := s.makerPay(f)
	makerLeft := int64(0)
	if pot, ok := s.locks[f.MakerOrder]; ok {
		makerLeft = pot.amount - s.planMakerSpent[f.MakerOrder]
	}
	makerShort := int64(0)
	if makerNeed > makerLeft {
		makerShort = makerNeed - makerLeft
		if !f.MakerAutoBorrow {
			return orderbook.ErrInsufficientBalance
		}
		k := borrowKey{f.MakerID, recvAsset(s.cfg, s.side)}
		if err := s.lend.CanBorrow(k.owner, k.asset, s.planBorrow[k]+makerShort); err != nil {
			return err
		}
	}

	// Both legs clear: consume the shadow state.
	if takerShort > 0 {
		s.planBorrow[borrowKey{s.owner, payAsset(s.cfg, s.side)}] += takerShort
		s.planTakerLeft = 0
	} else {
		s.planTakerLeft -= need
	}
	if makerShort > 0 {
		s.planBorrow[borrowKey{f.MakerID, recvAsset(s.cfg, s.side)}] += makerShort
		s.planMakerSpent[f.MakerOrder] += makerLeft
	} else {
		s.planMakerSpent[f.MakerOrder] += makerNeed
	}
	return nil
}

// Commit executes the settlement instructions for one fill: borrow the
// exact shortfall where a side runs short, then move both legs between
// locked and available balances, then apply auto-repay on each receiving
// side. It runs before the book mutates either order, so an error here
// skips the pairing without corrupting fill state.
func (s *settleSession) Commit(_ *orderbook.Order, f orderbook.Fill) error {
	need := s.takerPay(f)
	if need > s.takerPot.amount {
		short := need - s.takerPot.amount
		asset := payAsset(s.cfg, s.side)
		if err := s.lend.BorrowForUser(s.owner, asset, short); err != nil {
			return err
		}
		if err := s.bals.Lock(s.owner, asset, short); err != nil {
			return err
		}
		s.takerPot.amount += short
		s.settleBorrowPlanned(borrowKey{s.owner, asset}, short)
	}

	makerNeed := s.makerPay(f)
	pot := s.locks[f.MakerOrder]
	if pot == nil {
		pot = &orderLock{asset: recvAsset(s.cfg, s.side)}
		s.locks[f.MakerOrder] = pot
	}
	if makerNeed > pot.amount {
		short := makerNeed - pot.amount
		asset := recvAsset(s.cfg, s.side)
		if err := s.lend.BorrowForUser(f.MakerID, asset, short); err != nil {
			return err
		}
		if err := s.bals.Lock(f.MakerID, asset, short); err != nil {
			return err
		}
		pot.amount += short
		s.settleBorrowPlanned(borrowKey{f.MakerID, asset}, short)
	}

	if err := s.bals.TransferLocked(s.owner, f.MakerID, payAsset(s.cfg, s.side), need); err != nil {
		return err
	}
	s.takerPot.amount -= need
	s.spent += need

	if err := s.bals.TransferLocked(f.MakerID, s.owner, recvAsset(s.cfg, s.side), makerNeed); err != nil {
		return err
	}
	pot.amount -= makerNeed

	if s.autoRepay {
		if _, err := s.lend.RepayForUser(s.owner, recvAsset(s.cfg, s.side), makerNeed); err != nil {
			return orderbook.ErrRepayFailed
		}
	}
	if f.MakerAutoRepay {
		if _, err := s.lend.RepayForUser(f.MakerID, payAsset(s.cfg, s.side), need); err != nil {
			return orderbook.ErrRepayFailed
		}
	}
	return nil
}

// settleBorrowPlanned retires planned borrow that has now become real
// debt, so later CanBorrow checks in the same pass do not count it twice.
func (s *settleSession) settleBorrowPlanned(k borrowKey, amount int64) {
	if planned := s.planBorrow[k]; planned > 0 {
		s.planBorrow[k] = planned - min(planned, amount)
	}
}
