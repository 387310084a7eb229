package orderbook

import "github.com/google/uuid"

// Incoming describes an order request before admission. For market orders
// Price is the worst acceptable execution price, not a resting price.
type Incoming struct {
	Owner      uuid.UUID
	Side       Side
	Type       OrderType
	TIF        TimeInForce
	Price      int64
	Quantity   int64
	Expiry     int64
	AutoBorrow bool
	AutoRepay  bool
}

// Fill is one maker/taker pairing produced by matching. The maker's
// margin flags ride along so the settler can honor them without a
// lookup back into the book.
type Fill struct {
	MakerID         uuid.UUID
	MakerOrder      uint64
	Price           int64
	Quantity        int64 // base minor units
	Quote           int64 // quote-leg notional
	MakerAutoBorrow bool
	MakerAutoRepay  bool
}

// MatchResult reports the outcome of one submit.
type MatchResult struct {
	OrderID uint64
	Status  Status
	Filled  int64
	Quote   int64
	Fills   []Fill
	Resting bool
}

// priceSatisfies reports whether a taker with the given limit may trade at
// a level price.
func priceSatisfies(takerSide Side, limit, levelPrice int64) bool {
	if takerSide == Buy {
		return levelPrice <= limit
	}
	return levelPrice >= limit
}

// Preview runs the full matching simulation without mutating any state.
// It is the same machinery as the fill-or-kill pre-check; the router uses
// it to enforce slippage bounds before committing a market order.
func (b *Book) Preview(in Incoming, s Settler) (MatchResult, error) {
	if err := b.validate(in); err != nil {
		return MatchResult{}, err
	}
	staged := b.staged(in)
	fills := b.plan(&staged, s)
	res := MatchResult{Fills: fills}
	for _, f := range fills {
		res.Filled += f.Quantity
		res.Quote += f.Quote
	}
	return res, nil
}

// Submit runs the matching algorithm for one incoming order: dry-run
// pre-checks for FOK and PostOnly, the mutating walk, then disposition of
// the remainder per time-in-force. Every rejection happens before the
// first mutation; there is no partial-application error mode.
func (b *Book) Submit(in Incoming, s Settler) (MatchResult, error) {
	if err := b.validate(in); err != nil {
		return MatchResult{}, err
	}

	staged := b.staged(in)
	switch in.TIF {
	case FOK:
		planned := int64(0)
		for _, f := range b.plan(&staged, s) {
			planned += f.Quantity
		}
		if planned < in.Quantity {
			return MatchResult{}, ErrFillOrKillNotFulfilled
		}
	case PostOnly:
		// Price-based, not settleability-based: liquidity the settler
		// would refuse still counts as liquidity the order would take.
		if b.crosses(in.Side, in.Price) {
			return MatchResult{}, ErrPostOnlyWouldTake
		}
	}

	// Point of no return: admit and execute.
	o := b.arena.alloc()
	*o = staged
	o.ID = b.seq.Next()
	o.Status = Open
	b.arena.insert(o)

	fills := b.execute(o, s)
	now := b.now().UnixNano()

	switch {
	case o.Remaining() == 0:
		o.Status = Filled
		b.retire(o, now)
	case o.Type == Limit && (o.TIF == GTC || o.TIF == PostOnly):
		if b.crosses(o.Side, o.Price) {
			// Refused pairings left live liquidity at a crossing
			// price; resting here would cross the book.
			if o.Filled > 0 {
				o.Status = PartiallyFilled
			} else {
				o.Status = Cancelled
			}
			b.retire(o, now)
			break
		}
		if o.Filled > 0 {
			o.Status = PartiallyFilled
		}
		b.index(o.Side).upsert(o.Price).enqueue(b.arena, o)
	case o.TIF == FOK:
		panic("fill-or-kill remainder after a passed pre-check")
	default:
		// IOC remainder, and market orders regardless of TIF.
		if o.Filled > 0 {
			o.Status = PartiallyFilled
		} else {
			o.Status = Cancelled
		}
		b.retire(o, now)
	}

	b.refreshBest()
	b.assertUncrossed()

	res := MatchResult{
		OrderID: o.ID,
		Status:  o.Status,
		Fills:   fills,
		Resting: o.resting,
	}
	for _, f := range fills {
		res.Filled += f.Quantity
		res.Quote += f.Quote
	}
	return res, nil
}

func (b *Book) staged(in Incoming) Order {
	return Order{
		Owner:      in.Owner,
		PoolID:     b.cfg.PoolID,
		Side:       in.Side,
		Type:       in.Type,
		TIF:        in.TIF,
		Price:      in.Price,
		Quantity:   in.Quantity,
		Expiry:     in.Expiry,
		AutoBorrow: in.AutoBorrow,
		AutoRepay:  in.AutoRepay,
	}
}

// crosses reports whether any live opposing liquidity sits at a price the
// given limit would trade against.
func (b *Book) crosses(side Side, limit int64) bool {
	now := b.now().UnixNano()
	opp := b.index(side.Opposite())
	for lvl := opp.best(); lvl != nil; lvl = opp.past(lvl.price) {
		if !priceSatisfies(side, limit, lvl.price) {
			return false
		}
		for id := lvl.head; id != 0; {
			maker := b.arena.get(id)
			id = maker.next
			if !maker.expired(now) && maker.Remaining() > 0 {
				return true
			}
		}
	}
	return false
}

// plan simulates the walk of the opposing side without mutating anything:
// expired makers are skipped, each candidate pairing is offered to the
// settler, and pairings it refuses are skipped exactly as the mutating
// walk would skip them.
func (b *Book) plan(taker *Order, s Settler) []Fill {
	s.Reset()
	now := b.now().UnixNano()
	opp := b.index(taker.Side.Opposite())

	var fills []Fill
	var planned int64

	for lvl := opp.best(); lvl != nil && planned < taker.Quantity; lvl = opp.past(lvl.price) {
		if !priceSatisfies(taker.Side, taker.Price, lvl.price) {
			break
		}
		for id := lvl.head; id != 0 && planned < taker.Quantity; {
			maker := b.arena.get(id)
			id = maker.next
			if maker.expired(now) {
				continue
			}
			qty := min(taker.Quantity-planned, maker.Remaining())
			f := Fill{
				MakerID:         maker.Owner,
				MakerOrder:      maker.ID,
				Price:           lvl.price,
				Quantity:        qty,
				Quote:           b.notional(lvl.price, qty),
				MakerAutoBorrow: maker.AutoBorrow,
				MakerAutoRepay:  maker.AutoRepay,
			}
			if err := s.Prepare(taker, f); err != nil {
				continue
			}
			fills = append(fills, f)
			planned += qty
		}
	}
	return fills
}

// execute is the mutating walk: it consumes resting orders in price-time
// order, settles each fill through the settler, and keeps level volumes
// and statuses consistent. A pairing the settler refuses is skipped; a
// maker past its expiry is transitioned to Expired and unlinked.
func (b *Book) execute(taker *Order, s Settler) []Fill {
	s.Reset()
	now := b.now().UnixNano()
	opp := b.index(taker.Side.Opposite())

	var fills []Fill

	lvl := opp.best()
	for lvl != nil && taker.Remaining() > 0 {
		if !priceSatisfies(taker.Side, taker.Price, lvl.price) {
			break
		}
		price := lvl.price

		for id := lvl.head; id != 0 && taker.Remaining() > 0; {
			maker := b.arena.get(id)
			id = maker.next

			if maker.expired(now) {
				maker.Status = Expired
				lvl.remove(b.arena, maker)
				b.retire(maker, now)
				continue
			}

			qty := min(taker.Remaining(), maker.Remaining())
			f := Fill{
				MakerID:         maker.Owner,
				MakerOrder:      maker.ID,
				Price:           price,
				Quantity:        qty,
				Quote:           b.notional(price, qty),
				MakerAutoBorrow: maker.AutoBorrow,
				MakerAutoRepay:  maker.AutoRepay,
			}
			if err := s.Prepare(taker, f); err != nil {
				continue
			}
			if err := s.Commit(taker, f); err != nil {
				continue
			}

			taker.Filled += qty
			maker.Filled += qty
			lvl.reduce(qty)
			if maker.Remaining() == 0 {
				maker.Status = Filled
				lvl.remove(b.arena, maker)
				b.retire(maker, now)
			} else {
				maker.Status = PartiallyFilled
			}
			fills = append(fills, f)
		}

		if lvl.empty() {
			opp.drop(price)
		}
		lvl = opp.past(price)
	}
	return fills
}
