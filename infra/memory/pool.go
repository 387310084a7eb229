// Package memory provides the allocation primitives shared by the order
// books: a typed object pool and a FIFO retire ring used to reclaim
// terminal orders after their history retention window.
package memory

import "sync"

// Pool is a typed object pool.
type Pool[T any] struct {
	p *sync.Pool
}

func NewPool[T any](ctor func() *T) *Pool[T] {
	return &Pool[T]{
		p: &sync.Pool{
			New: func() any { return ctor() },
		},
	}
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

func (p *Pool[T]) Put(v *T) {
	p.p.Put(v)
}
