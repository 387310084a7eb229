package orderbook

import "scalex/infra/memory"

// arena owns every order admitted to one book, keyed by order id. The
// level queues link orders by id rather than by pointer, so a stale id
// can never dangle: it simply misses the table.
type arena struct {
	orders map[uint64]*Order
	pool   *memory.Pool[Order]
}

func newArena(pool *memory.Pool[Order]) *arena {
	return &arena{
		orders: make(map[uint64]*Order),
		pool:   pool,
	}
}

func (a *arena) get(id uint64) *Order {
	if id == 0 {
		return nil
	}
	return a.orders[id]
}

func (a *arena) alloc() *Order {
	o := a.pool.Get()
	*o = Order{}
	return o
}

func (a *arena) insert(o *Order) {
	a.orders[o.ID] = o
}

// release removes a terminal order from the table and recycles it. After
// this the id is gone from history; callers gate it behind the retention
// window.
func (a *arena) release(id uint64) {
	o, ok := a.orders[id]
	if !ok {
		return
	}
	delete(a.orders, id)
	a.pool.Put(o)
}

func (a *arena) len() int {
	return len(a.orders)
}
