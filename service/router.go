package service

import (
	"math/bits"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scalex/domain/orderbook"
	"scalex/infra/journal"
	"scalex/infra/memory"
	"scalex/infra/sequence"
)

// poolState bundles one pool's book with the funds pots backing its
// resting orders. mu is the single-writer guard: every mutating call
// takes the write lock, queries take the read lock.
type poolState struct {
	mu    sync.RWMutex
	book  *orderbook.Book
	locks map[uint64]*orderLock
}

// Router is the write entry point. It owns pool serialization, upfront
// fund locking, slippage enforcement for market orders, journaling and
// event emission; the book owns matching.
type Router struct {
	log  *zap.Logger
	reg  *Registry
	bals Balances
	lend Lender

	journal    CommandLog
	journalMu  sync.Mutex
	journalSeq uint64

	events   EventSink
	eventSeq atomic.Uint64

	seq   *sequence.Sequencer
	pools map[string]*poolState

	opMu      sync.RWMutex
	operators map[uuid.UUID]map[uuid.UUID]struct{}
}

func NewRouter(
	log *zap.Logger,
	reg *Registry,
	bals Balances,
	lend Lender,
	cmdlog CommandLog,
	events EventSink,
) *Router {
	r := &Router{
		log:       log,
		reg:       reg,
		bals:      bals,
		lend:      lend,
		journal:   cmdlog,
		events:    events,
		seq:       sequence.New(0),
		pools:     make(map[string]*poolState),
		operators: make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
	// Seeding from the clock keeps outbox keys unique across restarts
	// without persisting a counter.
	r.eventSeq.Store(uint64(time.Now().UnixNano()))

	pool := memory.NewPool(func() *orderbook.Order { return new(orderbook.Order) })
	for _, id := range reg.IDs() {
		cfg, _ := reg.Get(id)
		r.pools[id] = &poolState{
			book:  orderbook.New(cfg, r.seq, pool),
			locks: make(map[uint64]*orderLock),
		}
	}
	return r
}

// LimitOrder is a limit order request. Deposit is the amount of the
// payer asset to lock upfront; zero means lock the full requirement. A
// deposit below the requirement needs AutoBorrow to cover the rest.
type LimitOrder struct {
	Pool       string
	Owner      uuid.UUID
	Side       orderbook.Side
	TIF        orderbook.TimeInForce
	Price      int64
	Quantity   int64
	Expiry     int64
	Deposit    int64
	AutoBorrow bool
	AutoRepay  bool
}

// MarketOrder is a market order request. MinOut bounds the quote leg:
// for a sell it is the minimum quote received, for a buy the maximum
// quote spent, both over the executed quantity pro rata.
type MarketOrder struct {
	Pool       string
	Owner      uuid.UUID
	Side       orderbook.Side
	Quantity   int64
	MinOut     int64
	Deposit    int64
	AutoBorrow bool
	AutoRepay  bool
}

func (r *Router) pool(id string) (*poolState, orderbook.Config, error) {
	cfg, err := r.reg.Get(id)
	if err != nil {
		return nil, orderbook.Config{}, err
	}
	return r.pools[id], cfg, nil
}

// requiredFor is the deposit backing an order: the quote notional for a
// buy, the base quantity for a sell.
func requiredFor(cfg orderbook.Config, side orderbook.Side, price, qty int64) int64 {
	if side == orderbook.Buy {
		return price * qty / cfg.BaseUnit
	}
	return qty
}

// PlaceLimitOrder locks the order's deposit, submits it to the pool's
// book and reconciles the remaining lock with the resting remainder.
// Every rejection leaves balances and book state untouched.
func (r *Router) PlaceLimitOrder(req LimitOrder) (orderbook.MatchResult, error) {
	ps, cfg, err := r.pool(req.Pool)
	if err != nil {
		return orderbook.MatchResult{}, err
	}
	if r.reg.Paused(req.Pool) {
		return orderbook.MatchResult{}, orderbook.ErrTradingPaused
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	asset := payAsset(cfg, req.Side)
	required := requiredFor(cfg, req.Side, req.Price, req.Quantity)
	deposit, err := r.lockDeposit(req.Owner, asset, req.Deposit, required, req.AutoBorrow)
	if err != nil {
		return orderbook.MatchResult{}, err
	}

	sess := newSettleSession(r.bals, r.lend, cfg, req.Owner, req.Side,
		req.AutoBorrow, req.AutoRepay, deposit, ps.locks)

	res, err := ps.book.Submit(orderbook.Incoming{
		Owner:      req.Owner,
		Side:       req.Side,
		Type:       orderbook.Limit,
		TIF:        req.TIF,
		Price:      req.Price,
		Quantity:   req.Quantity,
		Expiry:     req.Expiry,
		AutoBorrow: req.AutoBorrow,
		AutoRepay:  req.AutoRepay,
	}, sess)
	if err != nil {
		if deposit > 0 {
			r.mustUnlock(req.Owner, asset, deposit)
		}
		return orderbook.MatchResult{}, err
	}

	// Journal before the funding reconciliation: if the remainder cannot
	// be funded it is cancelled below, and that cancel is journaled too,
	// so replay sees the same sequence of book mutations.
	ps.cleanupMakerPots(res.Fills)
	r.journalPlace(req.Pool, res.OrderID, orderbook.Incoming{
		Owner:      req.Owner,
		Side:       req.Side,
		Type:       orderbook.Limit,
		TIF:        req.TIF,
		Price:      req.Price,
		Quantity:   req.Quantity,
		Expiry:     req.Expiry,
		AutoBorrow: req.AutoBorrow,
		AutoRepay:  req.AutoRepay,
	}, res.Fills)

	if err := r.reconcileTakerPot(ps, cfg, req.Owner, req.Side, req.Price, req.Quantity, res, sess); err != nil {
		// The remainder rested but cannot be funded; take it back out.
		if _, cerr := ps.book.Cancel(res.OrderID, req.Owner, false); cerr != nil {
			r.log.Error("unfunded remainder cancel failed",
				zap.Uint64("order", res.OrderID), zap.Error(cerr))
		} else {
			r.journalCancel(req.Pool, res.OrderID)
		}
		return orderbook.MatchResult{}, err
	}

	r.emitPlaced(req.Pool, ps, res)
	return res, nil
}

// PlaceMarketOrder derives the worst acceptable price from MinOut, locks
// the deposit at that price, dry-runs the walk to enforce the slippage
// bound and only then executes.
func (r *Router) PlaceMarketOrder(req MarketOrder) (orderbook.MatchResult, error) {
	ps, cfg, err := r.pool(req.Pool)
	if err != nil {
		return orderbook.MatchResult{}, err
	}
	if r.reg.Paused(req.Pool) {
		return orderbook.MatchResult{}, orderbook.ErrTradingPaused
	}
	if req.MinOut <= 0 {
		return orderbook.MatchResult{}, orderbook.ErrInvalidPrice
	}

	worst, err := worstPrice(cfg, req.Side, req.Quantity, req.MinOut)
	if err != nil {
		return orderbook.MatchResult{}, err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	asset := payAsset(cfg, req.Side)
	required := requiredFor(cfg, req.Side, worst, req.Quantity)
	deposit, err := r.lockDeposit(req.Owner, asset, req.Deposit, required, req.AutoBorrow)
	if err != nil {
		return orderbook.MatchResult{}, err
	}

	sess := newSettleSession(r.bals, r.lend, cfg, req.Owner, req.Side,
		req.AutoBorrow, req.AutoRepay, deposit, ps.locks)

	in := orderbook.Incoming{
		Owner:      req.Owner,
		Side:       req.Side,
		Type:       orderbook.Market,
		TIF:        orderbook.IOC,
		Price:      worst,
		Quantity:   req.Quantity,
		AutoBorrow: req.AutoBorrow,
		AutoRepay:  req.AutoRepay,
	}

	preview, err := ps.book.Preview(in, sess)
	if err == nil && !withinSlippage(req.Side, req.Quantity, req.MinOut, preview) {
		err = orderbook.ErrSlippageExceeded
	}
	if err != nil {
		if deposit > 0 {
			r.mustUnlock(req.Owner, asset, deposit)
		}
		return orderbook.MatchResult{}, err
	}

	res, err := ps.book.Submit(in, sess)
	if err != nil {
		if deposit > 0 {
			r.mustUnlock(req.Owner, asset, deposit)
		}
		return orderbook.MatchResult{}, err
	}

	// Market orders never rest; release whatever the fills left behind.
	if sess.takerPot.amount > 0 {
		r.mustUnlock(req.Owner, asset, sess.takerPot.amount)
	}

	ps.cleanupMakerPots(res.Fills)
	r.journalPlace(req.Pool, res.OrderID, in, res.Fills)
	r.emitPlaced(req.Pool, ps, res)
	return res, nil
}

// worstPrice converts a quote-leg bound into the marketable limit price
// the walk may reach: the ceiling over the full quantity for a sell, the
// floor for a buy, rounded inward to the tick grid.
func worstPrice(cfg orderbook.Config, side orderbook.Side, qty, minOut int64) (int64, error) {
	if qty <= 0 {
		return 0, orderbook.ErrInvalidQuantity
	}
	raw := minOut * cfg.BaseUnit / qty
	if side == orderbook.Buy {
		p := raw - raw%cfg.TickSize
		if p < cfg.TickSize {
			return 0, orderbook.ErrSlippageExceeded
		}
		return p, nil
	}
	p := raw
	if rem := p % cfg.TickSize; rem != 0 {
		p += cfg.TickSize - rem
	}
	if p < cfg.TickSize {
		p = cfg.TickSize
	}
	return p, nil
}

// withinSlippage checks the executed average price against the MinOut
// bound pro rata over the filled quantity. The cross-multiplication runs
// in 128 bits; both products can exceed int64 for large notionals.
func withinSlippage(side orderbook.Side, qty, minOut int64, res orderbook.MatchResult) bool {
	if res.Filled == 0 {
		return true
	}
	c := cmp128(res.Quote, qty, minOut, res.Filled)
	if side == orderbook.Buy {
		return c <= 0
	}
	return c >= 0
}

// cmp128 compares a*b against c*d without overflow; operands must be
// non-negative.
func cmp128(a, b, c, d int64) int {
	hi1, lo1 := bits.Mul64(uint64(a), uint64(b))
	hi2, lo2 := bits.Mul64(uint64(c), uint64(d))
	switch {
	case hi1 != hi2:
		if hi1 < hi2 {
			return -1
		}
		return 1
	case lo1 != lo2:
		if lo1 < lo2 {
			return -1
		}
		return 1
	}
	return 0
}

// reconcileTakerPot aligns the locked deposit with the post-match order
// state: a resting remainder keeps exactly its requirement locked, a
// terminal order keeps nothing.
func (r *Router) reconcileTakerPot(
	ps *poolState,
	cfg orderbook.Config,
	owner uuid.UUID,
	side orderbook.Side,
	price, qty int64,
	res orderbook.MatchResult,
	sess *settleSession,
) error {
	pot := sess.takerPot
	if !res.Resting {
		if pot.amount > 0 {
			r.mustUnlock(owner, pot.asset, pot.amount)
			pot.amount = 0
		}
		return nil
	}

	needed := requiredFor(cfg, side, price, qty-res.Filled)
	switch {
	case pot.amount > needed:
		r.mustUnlock(owner, pot.asset, pot.amount-needed)
		pot.amount = needed
	case pot.amount < needed:
		// Only reachable when the deposit was skipped under auto-borrow.
		short := needed - pot.amount
		if err := r.lend.BorrowForUser(owner, pot.asset, short); err != nil {
			return err
		}
		if err := r.bals.Lock(owner, pot.asset, short); err != nil {
			return err
		}
		pot.amount = needed
	}
	ps.locks[res.OrderID] = pot
	return nil
}

// lockDeposit locks the order's upfront funding. A zero requested amount
// means lock the full requirement; anything short of the requirement, or
// a lock the balance cannot cover, needs auto-borrow to proceed.
func (r *Router) lockDeposit(owner uuid.UUID, asset string, requested, required int64, autoBorrow bool) (int64, error) {
	deposit := requested
	if deposit == 0 {
		deposit = required
	}
	if deposit < required && !autoBorrow {
		return 0, orderbook.ErrInsufficientBalance
	}
	if err := r.bals.Lock(owner, asset, deposit); err != nil {
		if !autoBorrow {
			return 0, orderbook.ErrInsufficientBalance
		}
		// Borrowed per fill at settlement instead.
		return 0, nil
	}
	return deposit, nil
}

// cleanupMakerPots drops pots fully drained by a match. A still-resting
// maker whose pot was emptied gets a fresh pot on its next fill.
func (ps *poolState) cleanupMakerPots(fills []orderbook.Fill) {
	for _, f := range fills {
		if pot := ps.locks[f.MakerOrder]; pot != nil && pot.amount == 0 {
			delete(ps.locks, f.MakerOrder)
		}
	}
}

// mustUnlock releases locked funds; a failure here means ledger state
// diverged from the router's pots and is logged loudly.
func (r *Router) mustUnlock(owner uuid.UUID, asset string, amount int64) {
	if err := r.bals.Unlock(owner, asset, amount); err != nil {
		r.log.Error("unlock failed",
			zap.Stringer("owner", owner),
			zap.String("asset", asset),
			zap.Int64("amount", amount),
			zap.Error(err))
	}
}

// CancelOrder removes a resting order and releases its remaining lock.
// caller may be the owner or one of the owner's approved operators.
func (r *Router) CancelOrder(pool string, id uint64, caller uuid.UUID) (orderbook.Order, error) {
	ps, _, err := r.pool(pool)
	if err != nil {
		return orderbook.Order{}, err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	operator := false
	if o, err := ps.book.Order(id); err == nil && o.Owner != caller {
		if !r.IsOperator(o.Owner, caller) {
			return orderbook.Order{}, orderbook.ErrUnauthorizedOperator
		}
		operator = true
	}

	cancelled, err := ps.book.Cancel(id, caller, operator)
	if err != nil {
		return orderbook.Order{}, err
	}

	if pot := ps.locks[id]; pot != nil {
		if pot.amount > 0 {
			r.mustUnlock(cancelled.Owner, pot.asset, pot.amount)
		}
		delete(ps.locks, id)
	}

	r.journalCancel(pool, id)
	r.emit(Event{
		Type:  EventOrderCancelled,
		Pool:  pool,
		Time:  time.Now().UnixNano(),
		Order: orderInfo(cancelled),
	})
	return cancelled, nil
}

// CancelResult is one entry of a batch cancellation answer.
type CancelResult struct {
	OrderID uint64
	Err     error
}

// BatchCancelOrders cancels each id in turn as an independent single
// cancellation; one failure never aborts the rest.
func (r *Router) BatchCancelOrders(pool string, ids []uint64, caller uuid.UUID) []CancelResult {
	out := make([]CancelResult, 0, len(ids))
	for _, id := range ids {
		_, err := r.CancelOrder(pool, id, caller)
		out = append(out, CancelResult{OrderID: id, Err: err})
	}
	return out
}

// GetOrder returns the current state of an order in a pool.
func (r *Router) GetOrder(pool string, id uint64) (orderbook.Order, error) {
	ps, _, err := r.pool(pool)
	if err != nil {
		return orderbook.Order{}, err
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.book.Order(id)
}

// GetOrderQueue reports the resting queue at one price level.
func (r *Router) GetOrderQueue(pool string, side orderbook.Side, price int64) (orderbook.LevelQuote, error) {
	ps, _, err := r.pool(pool)
	if err != nil {
		return orderbook.LevelQuote{}, err
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.book.Queue(side, price)
}

// GetBestPrice reports the best level of one side.
func (r *Router) GetBestPrice(pool string, side orderbook.Side) (orderbook.LevelQuote, error) {
	ps, _, err := r.pool(pool)
	if err != nil {
		return orderbook.LevelQuote{}, err
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.book.BestPrice(side)
}

// GetNextBestPrices returns up to count levels strictly past fromPrice.
func (r *Router) GetNextBestPrices(pool string, side orderbook.Side, fromPrice int64, count int) ([]orderbook.LevelQuote, error) {
	ps, _, err := r.pool(pool)
	if err != nil {
		return nil, err
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.book.NextBestPrices(side, fromPrice, count), nil
}

// Depth returns up to depth levels per side.
func (r *Router) Depth(pool string, depth int) (bids, asks []orderbook.LevelQuote, err error) {
	ps, _, err := r.pool(pool)
	if err != nil {
		return nil, nil, err
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	bids, asks = ps.book.Depth(depth)
	return bids, asks, nil
}

// ApproveOperator lets operator cancel on behalf of owner.
func (r *Router) ApproveOperator(owner, operator uuid.UUID) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	set := r.operators[owner]
	if set == nil {
		set = make(map[uuid.UUID]struct{})
		r.operators[owner] = set
	}
	set[operator] = struct{}{}
}

func (r *Router) RevokeOperator(owner, operator uuid.UUID) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	delete(r.operators[owner], operator)
}

func (r *Router) IsOperator(owner, operator uuid.UUID) bool {
	r.opMu.RLock()
	defer r.opMu.RUnlock()
	_, ok := r.operators[owner][operator]
	return ok
}

// PausePool rejects new orders for a pool; cancels and queries pass.
func (r *Router) PausePool(pool string) error {
	if _, err := r.reg.Get(pool); err != nil {
		return err
	}
	r.reg.Pause(pool)
	return nil
}

func (r *Router) ResumePool(pool string) error {
	if _, err := r.reg.Get(pool); err != nil {
		return err
	}
	r.reg.Resume(pool)
	return nil
}

// PruneHistory releases terminal orders retired longer than olderThan
// ago from every pool and reports how many were reclaimed.
func (r *Router) PruneHistory(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan).UnixNano()
	n := 0
	for _, ps := range r.pools {
		ps.mu.Lock()
		n += ps.book.Prune(cutoff)
		ps.mu.Unlock()
	}
	return n
}

func (r *Router) journalPlace(pool string, id uint64, in orderbook.Incoming, fills []orderbook.Fill) {
	if r.journal == nil {
		return
	}
	cmd := journal.PlaceCommand{
		PoolID:     pool,
		OrderID:    id,
		Owner:      in.Owner,
		Side:       uint8(in.Side),
		Type:       uint8(in.Type),
		TIF:        uint8(in.TIF),
		Price:      in.Price,
		Quantity:   in.Quantity,
		Expiry:     in.Expiry,
		AutoBorrow: in.AutoBorrow,
		AutoRepay:  in.AutoRepay,
	}
	for _, f := range fills {
		cmd.Fills = append(cmd.Fills, journal.FillRecord{
			MakerOrder: f.MakerOrder,
			Quantity:   f.Quantity,
		})
	}
	r.appendRecord(journal.RecordPlace, cmd.Encode())
}

func (r *Router) journalCancel(pool string, id uint64) {
	if r.journal == nil {
		return
	}
	cmd := journal.CancelCommand{PoolID: pool, OrderID: id}
	r.appendRecord(journal.RecordCancel, cmd.Encode())
}

func (r *Router) appendRecord(t journal.RecordType, payload []byte) {
	r.journalMu.Lock()
	defer r.journalMu.Unlock()
	r.journalSeq++
	if err := r.journal.Append(journal.NewRecord(t, r.journalSeq, payload)); err != nil {
		r.log.Error("journal append failed", zap.Error(err))
	}
}

func (r *Router) emitPlaced(pool string, ps *poolState, res orderbook.MatchResult) {
	now := time.Now().UnixNano()
	var info *OrderInfo
	if o, err := ps.book.Order(res.OrderID); err == nil {
		info = orderInfo(o)
	}
	r.emit(Event{Type: EventOrderPlaced, Pool: pool, Time: now, Order: info})
	if len(res.Fills) == 0 {
		return
	}
	fills := make([]FillEvent, 0, len(res.Fills))
	for _, f := range res.Fills {
		fills = append(fills, FillEvent{
			TakerOrder: res.OrderID,
			MakerOrder: f.MakerOrder,
			Maker:      f.MakerID,
			Price:      f.Price,
			Quantity:   f.Quantity,
			Quote:      f.Quote,
		})
	}
	r.emit(Event{Type: EventOrdersMatched, Pool: pool, Time: now, Fills: fills})
}
