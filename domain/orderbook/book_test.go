package orderbook

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"scalex/infra/memory"
	"scalex/infra/sequence"
)

var (
	alice = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	bob   = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	carol = uuid.MustParse("00000000-0000-0000-0000-00000000000c")
)

func testConfig() Config {
	return Config{
		PoolID:      "ETH-USD",
		BaseAsset:   "ETH",
		QuoteAsset:  "USD",
		TickSize:    1,
		LotSize:     1,
		MinQuantity: 1,
		MaxQuantity: 1_000_000,
		BaseUnit:    1,
	}
}

func newTestBook(opts ...Option) *Book {
	pool := memory.NewPool(func() *Order { return new(Order) })
	return New(testConfig(), sequence.New(0), pool, opts...)
}

func limit(owner uuid.UUID, side Side, price, qty int64) Incoming {
	return Incoming{Owner: owner, Side: side, Type: Limit, TIF: GTC, Price: price, Quantity: qty}
}

func TestLimitOrderRests(t *testing.T) {
	b := newTestBook()

	res, err := b.Submit(limit(alice, Buy, 100, 5), NopSettler{})
	require.NoError(t, err)
	require.True(t, res.Resting)
	require.Equal(t, Open, res.Status)
	require.Empty(t, res.Fills)

	best, err := b.BestPrice(Buy)
	require.NoError(t, err)
	require.Equal(t, int64(100), best.Price)
	require.Equal(t, int64(5), best.Volume)
	require.Equal(t, 1, best.Orders)
}

func TestCrossingOrdersMatchAtMakerPrice(t *testing.T) {
	b := newTestBook()

	maker, err := b.Submit(limit(alice, Sell, 100, 5), NopSettler{})
	require.NoError(t, err)

	taker, err := b.Submit(limit(bob, Buy, 105, 5), NopSettler{})
	require.NoError(t, err)
	require.Equal(t, Filled, taker.Status)
	require.Len(t, taker.Fills, 1)
	require.Equal(t, int64(100), taker.Fills[0].Price)
	require.Equal(t, maker.OrderID, taker.Fills[0].MakerOrder)

	_, err = b.BestPrice(Sell)
	require.ErrorIs(t, err, ErrQueueEmpty)

	o, err := b.Order(maker.OrderID)
	require.NoError(t, err)
	require.Equal(t, Filled, o.Status)
}

func TestPriceTimePriority(t *testing.T) {
	b := newTestBook()

	first, err := b.Submit(limit(alice, Sell, 100, 3), NopSettler{})
	require.NoError(t, err)
	second, err := b.Submit(limit(bob, Sell, 100, 3), NopSettler{})
	require.NoError(t, err)

	taker, err := b.Submit(limit(carol, Buy, 100, 4), NopSettler{})
	require.NoError(t, err)
	require.Len(t, taker.Fills, 2)
	require.Equal(t, first.OrderID, taker.Fills[0].MakerOrder)
	require.Equal(t, int64(3), taker.Fills[0].Quantity)
	require.Equal(t, second.OrderID, taker.Fills[1].MakerOrder)
	require.Equal(t, int64(1), taker.Fills[1].Quantity)
}

func TestBetterPricedLevelConsumedFirst(t *testing.T) {
	b := newTestBook()

	cheap, err := b.Submit(limit(alice, Sell, 99, 2), NopSettler{})
	require.NoError(t, err)
	_, err = b.Submit(limit(bob, Sell, 101, 2), NopSettler{})
	require.NoError(t, err)

	taker, err := b.Submit(limit(carol, Buy, 101, 3), NopSettler{})
	require.NoError(t, err)
	require.Len(t, taker.Fills, 2)
	require.Equal(t, cheap.OrderID, taker.Fills[0].MakerOrder)
	require.Equal(t, int64(99), taker.Fills[0].Price)
	require.Equal(t, int64(101), taker.Fills[1].Price)
}

func TestIOCPartialFillCancelsRemainder(t *testing.T) {
	b := newTestBook()

	_, err := b.Submit(limit(alice, Sell, 100, 5), NopSettler{})
	require.NoError(t, err)

	in := limit(bob, Buy, 100, 8)
	in.TIF = IOC
	res, err := b.Submit(in, NopSettler{})
	require.NoError(t, err)
	require.Equal(t, int64(5), res.Filled)
	require.Equal(t, PartiallyFilled, res.Status)
	require.False(t, res.Resting)

	// Nothing rested on the bid side.
	_, err = b.BestPrice(Buy)
	require.ErrorIs(t, err, ErrQueueEmpty)
}

func TestIOCNoLiquidityCancels(t *testing.T) {
	b := newTestBook()

	in := limit(bob, Buy, 100, 8)
	in.TIF = IOC
	res, err := b.Submit(in, NopSettler{})
	require.NoError(t, err)
	require.Equal(t, Cancelled, res.Status)
	require.Zero(t, res.Filled)
}

func TestFOKRejectsWithoutMutation(t *testing.T) {
	b := newTestBook()

	_, err := b.Submit(limit(alice, Sell, 100, 5), NopSettler{})
	require.NoError(t, err)
	before, err := b.Queue(Sell, 100)
	require.NoError(t, err)

	in := limit(bob, Buy, 100, 8)
	in.TIF = FOK
	_, err = b.Submit(in, NopSettler{})
	require.ErrorIs(t, err, ErrFillOrKillNotFulfilled)

	after, err := b.Queue(Sell, 100)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, 1, b.Orders())
}

func TestFOKFillsCompletely(t *testing.T) {
	b := newTestBook()

	_, err := b.Submit(limit(alice, Sell, 100, 5), NopSettler{})
	require.NoError(t, err)
	_, err = b.Submit(limit(bob, Sell, 101, 5), NopSettler{})
	require.NoError(t, err)

	in := limit(carol, Buy, 101, 8)
	in.TIF = FOK
	res, err := b.Submit(in, NopSettler{})
	require.NoError(t, err)
	require.Equal(t, Filled, res.Status)
	require.Equal(t, int64(8), res.Filled)
}

func TestPostOnlyRestsOffBest(t *testing.T) {
	b := newTestBook()

	_, err := b.Submit(limit(alice, Sell, 100, 5), NopSettler{})
	require.NoError(t, err)

	in := limit(bob, Buy, 99, 5)
	in.TIF = PostOnly
	res, err := b.Submit(in, NopSettler{})
	require.NoError(t, err)
	require.True(t, res.Resting)
	require.Empty(t, res.Fills)
}

func TestPostOnlyWouldTakeRejected(t *testing.T) {
	b := newTestBook()

	_, err := b.Submit(limit(alice, Sell, 100, 5), NopSettler{})
	require.NoError(t, err)
	before, err := b.Queue(Sell, 100)
	require.NoError(t, err)

	in := limit(bob, Buy, 100, 5)
	in.TIF = PostOnly
	_, err = b.Submit(in, NopSettler{})
	require.ErrorIs(t, err, ErrPostOnlyWouldTake)

	after, err := b.Queue(Sell, 100)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestMarketOrderNeverRests(t *testing.T) {
	b := newTestBook()

	_, err := b.Submit(limit(alice, Sell, 100, 3), NopSettler{})
	require.NoError(t, err)

	res, err := b.Submit(Incoming{
		Owner: bob, Side: Buy, Type: Market, TIF: IOC, Price: 110, Quantity: 5,
	}, NopSettler{})
	require.NoError(t, err)
	require.Equal(t, int64(3), res.Filled)
	require.Equal(t, PartiallyFilled, res.Status)
	require.False(t, res.Resting)
	_, err = b.BestPrice(Buy)
	require.ErrorIs(t, err, ErrQueueEmpty)
}

func TestValidationRejections(t *testing.T) {
	cfg := testConfig()
	cfg.TickSize = 5
	cfg.LotSize = 10
	cfg.MinQuantity = 10
	cfg.MaxQuantity = 100
	pool := memory.NewPool(func() *Order { return new(Order) })
	b := New(cfg, sequence.New(0), pool)

	cases := []struct {
		name string
		in   Incoming
		err  error
	}{
		{"zero price", limit(alice, Buy, 0, 10), ErrInvalidPrice},
		{"off tick", limit(alice, Buy, 101, 10), ErrInvalidPriceIncrement},
		{"zero quantity", limit(alice, Buy, 100, 0), ErrInvalidQuantity},
		{"off lot", limit(alice, Buy, 100, 15), ErrInvalidQuantityIncrement},
		{"too large", limit(alice, Buy, 100, 110), ErrOrderTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.Submit(tc.in, NopSettler{})
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestCancelOwnerAndOperator(t *testing.T) {
	b := newTestBook()

	res, err := b.Submit(limit(alice, Buy, 100, 5), NopSettler{})
	require.NoError(t, err)

	_, err = b.Cancel(res.OrderID, bob, false)
	require.ErrorIs(t, err, ErrUnauthorizedCancellation)

	o, err := b.Cancel(res.OrderID, bob, true)
	require.NoError(t, err)
	require.Equal(t, Cancelled, o.Status)

	_, err = b.Cancel(res.OrderID, alice, false)
	require.ErrorIs(t, err, ErrOrderIsNotOpen)

	_, err = b.Cancel(999999, alice, false)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCancelRemovesEmptyLevel(t *testing.T) {
	b := newTestBook()

	res, err := b.Submit(limit(alice, Buy, 100, 5), NopSettler{})
	require.NoError(t, err)

	_, err = b.Cancel(res.OrderID, alice, false)
	require.NoError(t, err)

	_, err = b.Queue(Buy, 100)
	require.ErrorIs(t, err, ErrQueueEmpty)
}

func TestLazyExpirySkipsAndTransitions(t *testing.T) {
	now := time.Unix(1000, 0)
	b := newTestBook(WithClock(func() time.Time { return now }))

	in := limit(alice, Sell, 100, 5)
	in.Expiry = now.Add(time.Minute).UnixNano()
	expiring, err := b.Submit(in, NopSettler{})
	require.NoError(t, err)

	live, err := b.Submit(limit(bob, Sell, 100, 5), NopSettler{})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	// Query reports the computed state without mutating.
	o, err := b.Order(expiring.OrderID)
	require.NoError(t, err)
	require.Equal(t, Expired, o.Status)

	taker, err := b.Submit(limit(carol, Buy, 100, 5), NopSettler{})
	require.NoError(t, err)
	require.Len(t, taker.Fills, 1)
	require.Equal(t, live.OrderID, taker.Fills[0].MakerOrder)

	// The expired maker was transitioned for real during the walk.
	o, err = b.Order(expiring.OrderID)
	require.NoError(t, err)
	require.Equal(t, Expired, o.Status)
	require.False(t, o.Resting())
}

func TestQueueVolumeTracksPartialFills(t *testing.T) {
	b := newTestBook()

	_, err := b.Submit(limit(alice, Sell, 100, 10), NopSettler{})
	require.NoError(t, err)

	in := limit(bob, Buy, 100, 4)
	in.TIF = IOC
	_, err = b.Submit(in, NopSettler{})
	require.NoError(t, err)

	q, err := b.Queue(Sell, 100)
	require.NoError(t, err)
	require.Equal(t, int64(6), q.Volume)
	require.Equal(t, 1, q.Orders)
}

func TestNextBestPricesWalksOutward(t *testing.T) {
	b := newTestBook()

	for _, p := range []int64{100, 99, 98, 97} {
		_, err := b.Submit(limit(alice, Buy, p, 1), NopSettler{})
		require.NoError(t, err)
	}
	for _, p := range []int64{101, 102, 103} {
		_, err := b.Submit(limit(bob, Sell, p, 1), NopSettler{})
		require.NoError(t, err)
	}

	bids := b.NextBestPrices(Buy, 100, 2)
	require.Len(t, bids, 2)
	require.Equal(t, int64(99), bids[0].Price)
	require.Equal(t, int64(98), bids[1].Price)

	asks := b.NextBestPrices(Sell, 101, 5)
	require.Len(t, asks, 2)
	require.Equal(t, int64(102), asks[0].Price)
	require.Equal(t, int64(103), asks[1].Price)
}

func TestDepthOrdering(t *testing.T) {
	b := newTestBook()

	for _, p := range []int64{98, 100, 99} {
		_, err := b.Submit(limit(alice, Buy, p, 2), NopSettler{})
		require.NoError(t, err)
	}
	for _, p := range []int64{103, 101, 102} {
		_, err := b.Submit(limit(bob, Sell, p, 2), NopSettler{})
		require.NoError(t, err)
	}

	bids, asks := b.Depth(2)
	require.Equal(t, []int64{100, 99}, []int64{bids[0].Price, bids[1].Price})
	require.Equal(t, []int64{101, 102}, []int64{asks[0].Price, asks[1].Price})
}

// refusingSettler refuses every pairing against the given maker order.
type refusingSettler struct {
	refuse map[uint64]bool
}

func (s refusingSettler) Reset() {}
func (s refusingSettler) Prepare(_ *Order, f Fill) error {
	if s.refuse[f.MakerOrder] {
		return ErrInsufficientBalance
	}
	return nil
}
func (s refusingSettler) Commit(*Order, Fill) error { return nil }

func TestSettlerRefusalSkipsPairing(t *testing.T) {
	b := newTestBook()

	broke, err := b.Submit(limit(alice, Sell, 100, 5), NopSettler{})
	require.NoError(t, err)
	funded, err := b.Submit(limit(bob, Sell, 100, 5), NopSettler{})
	require.NoError(t, err)

	in := limit(carol, Buy, 100, 5)
	in.TIF = IOC
	res, err := b.Submit(in, refusingSettler{refuse: map[uint64]bool{broke.OrderID: true}})
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
	require.Equal(t, funded.OrderID, res.Fills[0].MakerOrder)

	// The skipped maker still rests untouched.
	o, err := b.Order(broke.OrderID)
	require.NoError(t, err)
	require.Equal(t, Open, o.Status)
	require.Zero(t, o.Filled)
}

func TestRefusedCrossCancelsRemainder(t *testing.T) {
	b := newTestBook()

	broke, err := b.Submit(limit(alice, Sell, 100, 5), NopSettler{})
	require.NoError(t, err)

	// Every pairing refused: the GTC remainder must not rest at a price
	// that still crosses the surviving ask.
	res, err := b.Submit(limit(bob, Buy, 100, 5),
		refusingSettler{refuse: map[uint64]bool{broke.OrderID: true}})
	require.NoError(t, err)
	require.Equal(t, Cancelled, res.Status)
	require.False(t, res.Resting)
	require.Zero(t, res.Filled)

	_, err = b.BestPrice(Buy)
	require.ErrorIs(t, err, ErrQueueEmpty)
	best, err := b.BestPrice(Sell)
	require.NoError(t, err)
	require.Equal(t, int64(100), best.Price)
}

func TestRefusedCrossPartialFillCancelsRest(t *testing.T) {
	b := newTestBook()

	funded, err := b.Submit(limit(alice, Sell, 100, 3), NopSettler{})
	require.NoError(t, err)
	broke, err := b.Submit(limit(bob, Sell, 100, 5), NopSettler{})
	require.NoError(t, err)

	res, err := b.Submit(limit(carol, Buy, 100, 8),
		refusingSettler{refuse: map[uint64]bool{broke.OrderID: true}})
	require.NoError(t, err)
	require.Equal(t, PartiallyFilled, res.Status)
	require.False(t, res.Resting)
	require.Equal(t, int64(3), res.Filled)
	require.Len(t, res.Fills, 1)
	require.Equal(t, funded.OrderID, res.Fills[0].MakerOrder)

	// The refused maker keeps the level; the buy side stays empty.
	_, err = b.BestPrice(Buy)
	require.ErrorIs(t, err, ErrQueueEmpty)
	q, err := b.Queue(Sell, 100)
	require.NoError(t, err)
	require.Equal(t, int64(5), q.Volume)
}

func TestPostOnlyRejectedByUnsettleableCross(t *testing.T) {
	b := newTestBook()

	broke, err := b.Submit(limit(alice, Sell, 100, 5), NopSettler{})
	require.NoError(t, err)

	in := limit(bob, Buy, 100, 5)
	in.TIF = PostOnly
	_, err = b.Submit(in, refusingSettler{refuse: map[uint64]bool{broke.OrderID: true}})
	require.ErrorIs(t, err, ErrPostOnlyWouldTake)
}

func TestNotionalUsesBaseUnit(t *testing.T) {
	cfg := testConfig()
	cfg.BaseUnit = 100
	pool := memory.NewPool(func() *Order { return new(Order) })
	b := New(cfg, sequence.New(0), pool)

	_, err := b.Submit(limit(alice, Sell, 250, 10), NopSettler{})
	require.NoError(t, err)

	taker, err := b.Submit(limit(bob, Buy, 250, 10), NopSettler{})
	require.NoError(t, err)
	require.Equal(t, int64(25), taker.Quote) // 250*10/100
}

func TestQuantityConservation(t *testing.T) {
	b := newTestBook()

	for i := int64(0); i < 5; i++ {
		_, err := b.Submit(limit(alice, Sell, 100+i, 3), NopSettler{})
		require.NoError(t, err)
	}

	in := limit(bob, Buy, 104, 11)
	in.TIF = IOC
	res, err := b.Submit(in, NopSettler{})
	require.NoError(t, err)

	var sum int64
	for _, f := range res.Fills {
		sum += f.Quantity
	}
	require.Equal(t, res.Filled, sum)
	require.Equal(t, int64(11), sum)

	q, err := b.Queue(Sell, 103)
	require.NoError(t, err)
	require.Equal(t, int64(1), q.Volume)
}

func TestPruneReclaimsOldTerminalOrders(t *testing.T) {
	now := time.Unix(1000, 0)
	b := newTestBook(WithClock(func() time.Time { return now }))

	res, err := b.Submit(limit(alice, Buy, 100, 5), NopSettler{})
	require.NoError(t, err)
	_, err = b.Cancel(res.OrderID, alice, false)
	require.NoError(t, err)

	// Cutoff in the past keeps the order queryable.
	require.Zero(t, b.Prune(now.Add(-time.Hour).UnixNano()))
	_, err = b.Order(res.OrderID)
	require.NoError(t, err)

	require.Equal(t, 1, b.Prune(now.Add(time.Hour).UnixNano()))
	_, err = b.Order(res.OrderID)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPruneReclaimsRingOverflow(t *testing.T) {
	now := time.Unix(1000, 0)
	b := newTestBook(WithClock(func() time.Time { return now }))

	// Enough cancels to spill past the retire ring's capacity; every id
	// must still be reclaimable.
	const n = (1 << 16) + 64
	for i := 0; i < n; i++ {
		res, err := b.Submit(limit(alice, Buy, 100, 1), NopSettler{})
		require.NoError(t, err)
		_, err = b.Cancel(res.OrderID, alice, false)
		require.NoError(t, err)
	}
	require.Equal(t, n, b.Orders())

	require.Equal(t, n, b.Prune(now.Add(time.Hour).UnixNano()))
	require.Equal(t, 0, b.Orders())
}
