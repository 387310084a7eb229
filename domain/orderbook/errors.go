package orderbook

import "errors"

// Input validation. Rejected before any state is touched.
var (
	ErrInvalidPrice             = errors.New("price must be positive")
	ErrInvalidQuantity          = errors.New("quantity must be positive")
	ErrInvalidPriceIncrement    = errors.New("price is not a multiple of the pool tick size")
	ErrInvalidQuantityIncrement = errors.New("quantity is not a multiple of the pool lot size")
	ErrOrderTooSmall            = errors.New("quantity below the pool minimum")
	ErrOrderTooLarge            = errors.New("quantity above the pool maximum")
	ErrIdenticalCurrencies      = errors.New("pool base and quote assets are identical")
)

// Policy violations. Rejected after a dry-run pass; zero mutation.
var (
	ErrFillOrKillNotFulfilled = errors.New("fill-or-kill order cannot be fully filled")
	ErrPostOnlyWouldTake      = errors.New("post-only order would take liquidity")
	ErrSlippageExceeded       = errors.New("average fill price violates slippage bound")
	ErrTradingPaused          = errors.New("trading is paused for this pool")
)

// Authorization.
var (
	ErrUnauthorizedCancellation = errors.New("caller is neither owner nor an approved operator")
	ErrUnauthorizedOperator     = errors.New("operator is not approved by the owner")
)

// Not-found / state mismatch.
var (
	ErrPoolNotFound   = errors.New("unknown pool")
	ErrOrderNotFound  = errors.New("order not found")
	ErrOrderIsNotOpen = errors.New("order is not an open order")
	ErrQueueEmpty     = errors.New("no resting orders at this price")
)

// Collateral / margin, surfaced per fill by the settler.
var (
	ErrInsufficientHealthFactor = errors.New("insufficient health factor for borrow")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrBorrowFailed             = errors.New("borrow failed")
	ErrRepayFailed              = errors.New("repay failed")
)

// ErrNegativeSpread is not a recoverable error: it is used as a panic value
// when an operation would leave bestBid >= bestAsk, which indicates a defect
// in the matching algorithm itself.
var ErrNegativeSpread = errors.New("negative spread created")
