package orderbook

import "github.com/google/uuid"

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

type OrderType uint8

const (
	Limit OrderType = iota
	Market
)

func (t OrderType) String() string {
	if t == Market {
		return "market"
	}
	return "limit"
}

// TimeInForce governs what happens to an order's unfilled remainder.
type TimeInForce uint8

const (
	GTC      TimeInForce = iota // rest until cancelled
	IOC                         // fill what crosses, drop the rest
	FOK                         // fill completely or abort with no state change
	PostOnly                    // rest only; reject if it would take
)

func (t TimeInForce) String() string {
	switch t {
	case IOC:
		return "ioc"
	case FOK:
		return "fok"
	case PostOnly:
		return "post_only"
	default:
		return "gtc"
	}
}

type Status uint8

const (
	Open Status = iota
	PartiallyFilled
	Filled
	Cancelled
	Expired
)

func (s Status) String() string {
	switch s {
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Expired:
		return "expired"
	default:
		return "open"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == Filled || s == Cancelled || s == Expired
}

// Order is one resting or in-flight request. Identity is immutable after
// admission; only fill state and status change, and only inside the book.
type Order struct {
	ID       uint64
	Owner    uuid.UUID
	PoolID   string
	Side     Side
	Type     OrderType
	TIF      TimeInForce
	Price    int64 // limit price; for market orders the worst acceptable price
	Quantity int64 // base minor units
	Filled   int64
	Status   Status
	Expiry   int64 // unix nanos; 0 = never expires

	AutoBorrow bool
	AutoRepay  bool

	// FIFO links within one price level, as order ids into the arena.
	// 0 is the sentinel for "no neighbour".
	next, prev uint64

	resting   bool
	retiredAt int64 // unix nanos when a terminal status was reached
}

func (o *Order) Remaining() int64 {
	return o.Quantity - o.Filled
}

// Resting reports whether the order currently sits in a price level queue.
func (o *Order) Resting() bool {
	return o.resting
}

func (o *Order) expired(now int64) bool {
	return o.Expiry != 0 && now > o.Expiry
}
