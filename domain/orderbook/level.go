package orderbook

// level is a FIFO queue of same-price orders, linked through the arena by
// order id. totalVolume tracks the sum of remaining amounts and must stay
// equal to a fresh walk of the queue at all times.
type level struct {
	price       int64
	head, tail  uint64
	orderCount  int
	totalVolume int64
}

func (l *level) enqueue(a *arena, o *Order) {
	o.next, o.prev = 0, 0
	if l.tail == 0 {
		l.head = o.ID
	} else {
		tail := a.get(l.tail)
		tail.next = o.ID
		o.prev = tail.ID
	}
	l.tail = o.ID
	l.orderCount++
	l.totalVolume += o.Remaining()
	o.resting = true
}

// remove splices an order out of the queue in O(1) using its stored
// prev/next ids. volume accounting uses the order's current remaining
// amount, so fills must be applied either before removal or via reduce,
// never both.
func (l *level) remove(a *arena, o *Order) {
	if o.prev != 0 {
		a.get(o.prev).next = o.next
	} else {
		l.head = o.next
	}
	if o.next != 0 {
		a.get(o.next).prev = o.prev
	} else {
		l.tail = o.prev
	}
	o.next, o.prev = 0, 0
	o.resting = false
	l.orderCount--
	l.totalVolume -= o.Remaining()
}

// reduce lowers the aggregate volume after a partial fill that leaves the
// order in the queue.
func (l *level) reduce(delta int64) {
	l.totalVolume -= delta
}

func (l *level) empty() bool {
	return l.head == 0
}
