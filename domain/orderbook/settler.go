package orderbook

// Settler receives the per-fill settlement instructions of one submit
// call. Prepare is consulted during dry-run passes and before every
// mutation: it must validate balances and borrowing capacity without
// committing anything. Commit executes the transfers (and any borrow or
// repay) for one fill and is called before the book mutates either order,
// so a failed commit skips the pairing cleanly.
//
// Reset starts a new pass; a submit runs up to two (pre-check, then
// execution) and both must see the same answers for the same fills.
type Settler interface {
	Reset()
	Prepare(taker *Order, f Fill) error
	Commit(taker *Order, f Fill) error
}

// NopSettler accepts every fill. Used by the pure book tests and by
// journal replay, where balances are not reconstructed.
type NopSettler struct{}

func (NopSettler) Reset()                     {}
func (NopSettler) Prepare(*Order, Fill) error { return nil }
func (NopSettler) Commit(*Order, Fill) error  { return nil }
