package orderbook

import (
	"time"

	"github.com/google/uuid"

	"scalex/infra/memory"
	"scalex/infra/sequence"
)

// Config describes one trading pool.
type Config struct {
	PoolID     string
	BaseAsset  string
	QuoteAsset string

	TickSize    int64 // minimum price increment, quote minor units
	LotSize     int64 // minimum quantity increment, base minor units
	MinQuantity int64
	MaxQuantity int64

	// BaseUnit is the number of base minor units per whole base asset;
	// the quote leg of a fill is price*qty/BaseUnit.
	BaseUnit int64
}

func (c Config) Validate() error {
	if c.BaseAsset == c.QuoteAsset {
		return ErrIdenticalCurrencies
	}
	if c.TickSize <= 0 || c.LotSize <= 0 || c.BaseUnit <= 0 {
		return ErrInvalidQuantityIncrement
	}
	if c.MinQuantity <= 0 || c.MaxQuantity < c.MinQuantity {
		return ErrInvalidQuantity
	}
	return nil
}

// Book is the single-writer state machine for one pool: the order table,
// both side indexes and the cached best prices. It performs no I/O and
// holds no lock; the caller serializes all mutating operations per pool.
type Book struct {
	cfg   Config
	arena *arena
	bids  *sideIndex
	asks  *sideIndex
	seq   *sequence.Sequencer

	retired  *memory.RetireRing[uint64]
	overflow []uint64 // retired ids that did not fit the ring

	bestBid, bestAsk int64
	hasBid, hasAsk   bool

	now func() time.Time
}

type Option func(*Book)

// WithClock overrides the time source, used for expiry in tests.
func WithClock(now func() time.Time) Option {
	return func(b *Book) { b.now = now }
}

// SetClock swaps the time source. Journal replay pins it to each record's
// original time so expiry evaluates as it did then, and restores it after.
func (b *Book) SetClock(now func() time.Time) { b.now = now }

func New(cfg Config, seq *sequence.Sequencer, pool *memory.Pool[Order], opts ...Option) *Book {
	b := &Book{
		cfg:     cfg,
		arena:   newArena(pool),
		bids:    newSideIndex(Buy),
		asks:    newSideIndex(Sell),
		seq:     seq,
		retired: memory.NewRetireRing[uint64](1 << 16),
		now:     time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Book) Config() Config { return b.cfg }

func (b *Book) index(s Side) *sideIndex {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// notional is the quote-leg amount of a fill.
func (b *Book) notional(price, qty int64) int64 {
	return price * qty / b.cfg.BaseUnit
}

func (b *Book) validate(in Incoming) error {
	if in.Price <= 0 {
		return ErrInvalidPrice
	}
	if in.Price%b.cfg.TickSize != 0 {
		return ErrInvalidPriceIncrement
	}
	if in.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if in.Quantity%b.cfg.LotSize != 0 {
		return ErrInvalidQuantityIncrement
	}
	if in.Quantity < b.cfg.MinQuantity {
		return ErrOrderTooSmall
	}
	if in.Quantity > b.cfg.MaxQuantity {
		return ErrOrderTooLarge
	}
	return nil
}

// Cancel removes a resting order. caller must be the owner; operator marks
// a cancellation relayed through an approved operator. The returned copy
// reflects the order after the transition and lets the router release the
// remaining locked funds.
func (b *Book) Cancel(id uint64, caller uuid.UUID, operator bool) (Order, error) {
	o := b.arena.get(id)
	if o == nil {
		return Order{}, ErrOrderNotFound
	}
	if caller != o.Owner && !operator {
		return Order{}, ErrUnauthorizedCancellation
	}
	if o.Status.Terminal() || !o.resting {
		return Order{}, ErrOrderIsNotOpen
	}

	now := b.now().UnixNano()
	lvl := b.index(o.Side).find(o.Price)
	lvl.remove(b.arena, o)
	if lvl.empty() {
		b.index(o.Side).drop(o.Price)
	}
	if o.expired(now) {
		o.Status = Expired
	} else {
		o.Status = Cancelled
	}
	b.retire(o, now)

	b.refreshBest()
	b.assertUncrossed()
	return *o, nil
}

// Order returns a copy of the order's current state. A resting order past
// its expiry is reported Expired without being mutated; the next match or
// cancel that touches it performs the actual transition.
func (b *Book) Order(id uint64) (Order, error) {
	o := b.arena.get(id)
	if o == nil {
		return Order{}, ErrOrderNotFound
	}
	cp := *o
	if !cp.Status.Terminal() && cp.expired(b.now().UnixNano()) {
		cp.Status = Expired
	}
	return cp, nil
}

// LevelQuote is one price level in a depth or queue answer.
type LevelQuote struct {
	Price  int64
	Volume int64
	Orders int
}

// Queue reports the resting queue at one exact price.
func (b *Book) Queue(side Side, price int64) (LevelQuote, error) {
	lvl := b.index(side).find(price)
	if lvl == nil || lvl.empty() {
		return LevelQuote{}, ErrQueueEmpty
	}
	return LevelQuote{Price: lvl.price, Volume: lvl.totalVolume, Orders: lvl.orderCount}, nil
}

// BestPrice reports the most favorable level of one side.
func (b *Book) BestPrice(side Side) (LevelQuote, error) {
	lvl := b.index(side).best()
	if lvl == nil {
		return LevelQuote{}, ErrQueueEmpty
	}
	return LevelQuote{Price: lvl.price, Volume: lvl.totalVolume, Orders: lvl.orderCount}, nil
}

// NextBestPrices returns up to count levels strictly past fromPrice,
// walking outward from the side's best price in strict price order.
func (b *Book) NextBestPrices(side Side, fromPrice int64, count int) []LevelQuote {
	levels := b.index(side).nextLevels(fromPrice, count)
	out := make([]LevelQuote, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, LevelQuote{Price: lvl.price, Volume: lvl.totalVolume, Orders: lvl.orderCount})
	}
	return out
}

// Depth returns up to depth levels per side from the best outward.
func (b *Book) Depth(depth int) (bids, asks []LevelQuote) {
	collect := func(s *sideIndex) []LevelQuote {
		out := make([]LevelQuote, 0, depth)
		s.walkOut(func(lvl *level) bool {
			out = append(out, LevelQuote{Price: lvl.price, Volume: lvl.totalVolume, Orders: lvl.orderCount})
			return len(out) < depth
		})
		return out
	}
	return collect(b.bids), collect(b.asks)
}

// Orders reports the size of the order table, terminal history included.
func (b *Book) Orders() int { return b.arena.len() }

// EachResting visits a copy of every resting order, bids then asks, each
// side from its best price outward. Return false to stop the walk.
func (b *Book) EachResting(fn func(Order) bool) {
	for _, s := range []*sideIndex{b.bids, b.asks} {
		stopped := false
		s.walkOut(func(lvl *level) bool {
			for id := lvl.head; id != 0; {
				o := b.arena.get(id)
				id = o.next
				if !fn(*o) {
					stopped = true
					return false
				}
			}
			return true
		})
		if stopped {
			return
		}
	}
}

// retire marks an order terminal and queues it for history reclamation.
// Ids that do not fit the ring spill to the overflow slice so nothing is
// ever lost to the arena.
func (b *Book) retire(o *Order, now int64) {
	o.retiredAt = now
	if !b.retired.Enqueue(o.ID) {
		b.overflow = append(b.overflow, o.ID)
	}
}

// Prune releases terminal orders retired before cutoff from the order
// table. Ids released here stop resolving in Order lookups. One full scan
// per call: requeues do not preserve age order, so the scan is bounded by
// the ring length instead of stopping at the first too-new entry.
func (b *Book) Prune(cutoff int64) int {
	n := 0
	for i := b.retired.Len(); i > 0; i-- {
		id, ok := b.retired.Dequeue()
		if !ok {
			break
		}
		o := b.arena.get(id)
		if o == nil {
			continue
		}
		if o.retiredAt > cutoff {
			_ = b.retired.Requeue(id)
			continue
		}
		b.arena.release(id)
		n++
	}

	keep := b.overflow[:0]
	for _, id := range b.overflow {
		o := b.arena.get(id)
		if o == nil {
			continue
		}
		if o.retiredAt > cutoff {
			// Pruning freed ring slots; move back in when possible.
			if !b.retired.Enqueue(id) {
				keep = append(keep, id)
			}
			continue
		}
		b.arena.release(id)
		n++
	}
	b.overflow = keep
	return n
}

func (b *Book) refreshBest() {
	if lvl := b.bids.best(); lvl != nil {
		b.bestBid, b.hasBid = lvl.price, true
	} else {
		b.bestBid, b.hasBid = 0, false
	}
	if lvl := b.asks.best(); lvl != nil {
		b.bestAsk, b.hasAsk = lvl.price, true
	} else {
		b.bestAsk, b.hasAsk = 0, false
	}
}

// assertUncrossed enforces the resting no-negative-spread invariant. A
// crossed book after a completed operation is a matching defect, not a
// recoverable condition.
func (b *Book) assertUncrossed() {
	if b.hasBid && b.hasAsk && b.bestBid >= b.bestAsk {
		panic(ErrNegativeSpread)
	}
}
