package service

import (
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scalex/domain/orderbook"
)

const (
	EventOrderPlaced    = "order_placed"
	EventOrderCancelled = "order_cancelled"
	EventOrdersMatched  = "orders_matched"
)

// Event is the public envelope written to the outbox and broadcast by
// the broadcaster.
type Event struct {
	V     int         `json:"v"`
	Seq   uint64      `json:"seq"`
	Type  string      `json:"type"`
	Pool  string      `json:"pool"`
	Time  int64       `json:"time"`
	Order *OrderInfo  `json:"order,omitempty"`
	Fills []FillEvent `json:"fills,omitempty"`
}

type OrderInfo struct {
	ID       uint64    `json:"id"`
	Owner    uuid.UUID `json:"owner"`
	Side     string    `json:"side"`
	Type     string    `json:"order_type"`
	TIF      string    `json:"time_in_force"`
	Price    int64     `json:"price"`
	Quantity int64     `json:"quantity"`
	Filled   int64     `json:"filled"`
	Status   string    `json:"status"`
}

type FillEvent struct {
	TakerOrder uint64    `json:"taker_order"`
	MakerOrder uint64    `json:"maker_order"`
	Maker      uuid.UUID `json:"maker"`
	Price      int64     `json:"price"`
	Quantity   int64     `json:"quantity"`
	Quote      int64     `json:"quote"`
}

func orderInfo(o orderbook.Order) *OrderInfo {
	return &OrderInfo{
		ID:       o.ID,
		Owner:    o.Owner,
		Side:     o.Side.String(),
		Type:     o.Type.String(),
		TIF:      o.TIF.String(),
		Price:    o.Price,
		Quantity: o.Quantity,
		Filled:   o.Filled,
		Status:   o.Status.String(),
	}
}

// emit serializes the event and writes it to the outbox. Events are
// best-effort relative to book state: a full or failed sink is logged by
// the caller, never rolled back into the book.
func (r *Router) emit(ev Event) {
	if r.events == nil {
		return
	}
	ev.V = 1
	ev.Seq = r.eventSeq.Add(1)
	payload, err := json.Marshal(ev)
	if err != nil {
		r.log.Error("event marshal failed", zap.Error(err))
		return
	}
	if err := r.events.Put(ev.Seq, payload); err != nil {
		r.log.Error("event sink write failed", zap.Error(err))
	}
}
