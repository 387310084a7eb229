package service

import (
	"sync"

	"scalex/domain/orderbook"
)

// Registry holds the pool definitions and their trading state. Pool
// parameters are fixed at construction; only the paused flag changes at
// runtime.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]orderbook.Config
	pause map[string]bool
}

func NewRegistry(pools []orderbook.Config) (*Registry, error) {
	r := &Registry{
		pools: make(map[string]orderbook.Config, len(pools)),
		pause: make(map[string]bool, len(pools)),
	}
	for _, cfg := range pools {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		r.pools[cfg.PoolID] = cfg
	}
	return r, nil
}

func (r *Registry) Get(pool string) (orderbook.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.pools[pool]
	if !ok {
		return orderbook.Config{}, orderbook.ErrPoolNotFound
	}
	return cfg, nil
}

func (r *Registry) Paused(pool string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pause[pool]
}

func (r *Registry) Pause(pool string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pause[pool] = true
}

func (r *Registry) Resume(pool string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pause, pool)
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.pools))
	for id := range r.pools {
		ids = append(ids, id)
	}
	return ids
}
