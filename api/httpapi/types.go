package httpapi

import (
	"fmt"

	"github.com/google/uuid"

	"scalex/domain/orderbook"
)

type LimitOrderRequest struct {
	Pool       string    `json:"pool" validate:"required"`
	Owner      uuid.UUID `json:"owner" validate:"required"`
	Side       string    `json:"side" validate:"required,oneof=buy sell"`
	TIF        string    `json:"time_in_force" validate:"omitempty,oneof=gtc ioc fok post_only"`
	Price      int64     `json:"price" validate:"required,gt=0"`
	Quantity   int64     `json:"quantity" validate:"required,gt=0"`
	Expiry     int64     `json:"expiry" validate:"omitempty,gt=0"`
	Deposit    int64     `json:"deposit" validate:"omitempty,gt=0"`
	AutoBorrow bool      `json:"auto_borrow"`
	AutoRepay  bool      `json:"auto_repay"`
}

type MarketOrderRequest struct {
	Pool       string    `json:"pool" validate:"required"`
	Owner      uuid.UUID `json:"owner" validate:"required"`
	Side       string    `json:"side" validate:"required,oneof=buy sell"`
	Quantity   int64     `json:"quantity" validate:"required,gt=0"`
	MinOut     int64     `json:"min_out" validate:"required,gt=0"`
	Deposit    int64     `json:"deposit" validate:"omitempty,gt=0"`
	AutoBorrow bool      `json:"auto_borrow"`
	AutoRepay  bool      `json:"auto_repay"`
}

type CancelRequest struct {
	Pool    string    `json:"pool" validate:"required"`
	OrderID uint64    `json:"order_id" validate:"required"`
	Caller  uuid.UUID `json:"caller" validate:"required"`
}

type BatchCancelRequest struct {
	Pool     string    `json:"pool" validate:"required"`
	OrderIDs []uint64  `json:"order_ids" validate:"required,min=1,dive,required"`
	Caller   uuid.UUID `json:"caller" validate:"required"`
}

type OperatorRequest struct {
	Owner    uuid.UUID `json:"owner" validate:"required"`
	Operator uuid.UUID `json:"operator" validate:"required"`
}

type PlaceResponse struct {
	OrderID uint64         `json:"order_id"`
	Status  string         `json:"status"`
	Filled  int64          `json:"filled"`
	Quote   int64          `json:"quote"`
	Resting bool           `json:"resting"`
	Fills   []FillResponse `json:"fills,omitempty"`
}

type FillResponse struct {
	MakerOrder uint64 `json:"maker_order"`
	Price      int64  `json:"price"`
	Quantity   int64  `json:"quantity"`
	Quote      int64  `json:"quote"`
}

type OrderResponse struct {
	ID       uint64    `json:"id"`
	Owner    uuid.UUID `json:"owner"`
	Pool     string    `json:"pool"`
	Side     string    `json:"side"`
	Type     string    `json:"order_type"`
	TIF      string    `json:"time_in_force"`
	Price    int64     `json:"price"`
	Quantity int64     `json:"quantity"`
	Filled   int64     `json:"filled"`
	Status   string    `json:"status"`
	Expiry   int64     `json:"expiry,omitempty"`
}

type LevelResponse struct {
	Price  int64 `json:"price"`
	Volume int64 `json:"volume"`
	Orders int   `json:"orders"`
}

type DepthResponse struct {
	Pool string          `json:"pool"`
	Bids []LevelResponse `json:"bids"`
	Asks []LevelResponse `json:"asks"`
}

type BatchCancelResponse struct {
	Results []CancelResultResponse `json:"results"`
}

type CancelResultResponse struct {
	OrderID uint64 `json:"order_id"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func parseSide(s string) (orderbook.Side, error) {
	switch s {
	case "buy":
		return orderbook.Buy, nil
	case "sell":
		return orderbook.Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

func parseTIF(s string) (orderbook.TimeInForce, error) {
	switch s {
	case "", "gtc":
		return orderbook.GTC, nil
	case "ioc":
		return orderbook.IOC, nil
	case "fok":
		return orderbook.FOK, nil
	case "post_only":
		return orderbook.PostOnly, nil
	default:
		return 0, fmt.Errorf("unknown time in force %q", s)
	}
}

func placeResponse(res orderbook.MatchResult) PlaceResponse {
	out := PlaceResponse{
		OrderID: res.OrderID,
		Status:  res.Status.String(),
		Filled:  res.Filled,
		Quote:   res.Quote,
		Resting: res.Resting,
	}
	for _, f := range res.Fills {
		out.Fills = append(out.Fills, FillResponse{
			MakerOrder: f.MakerOrder,
			Price:      f.Price,
			Quantity:   f.Quantity,
			Quote:      f.Quote,
		})
	}
	return out
}

func orderResponse(o orderbook.Order) OrderResponse {
	return OrderResponse{
		ID:       o.ID,
		Owner:    o.Owner,
		Pool:     o.PoolID,
		Side:     o.Side.String(),
		Type:     o.Type.String(),
		TIF:      o.TIF.String(),
		Price:    o.Price,
		Quantity: o.Quantity,
		Filled:   o.Filled,
		Status:   o.Status.String(),
		Expiry:   o.Expiry,
	}
}

func levelResponse(lvl orderbook.LevelQuote) LevelResponse {
	return LevelResponse{Price: lvl.Price, Volume: lvl.Volume, Orders: lvl.Orders}
}

func levelResponses(levels []orderbook.LevelQuote) []LevelResponse {
	out := make([]LevelResponse, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, levelResponse(lvl))
	}
	return out
}
