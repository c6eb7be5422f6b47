package service

import (
	"context"
	"sync"

	"pos-service/internal/util"
)

// InventoryRegistry owns one InventoryManager per tenant. Managers are
// created on first use and live until released.
type InventoryRegistry struct {
	stock  StockStore
	orders OrderLister
	feed   OrderSubscriber
	strict bool

	mu       sync.Mutex
	managers map[string]*InventoryManager
	pending  map[string]*pendingManager
}

type pendingManager struct {
	done chan struct{}
	m    *InventoryManager
	err  error
}

func NewInventoryRegistry(stock StockStore, orders OrderLister, feed OrderSubscriber, strict bool) *InventoryRegistry {
	return &InventoryRegistry{
		stock:    stock,
		orders:   orders,
		feed:     feed,
		strict:   strict,
		managers: make(map[string]*InventoryManager),
		pending:  make(map[string]*pendingManager),
	}
}

// Get returns the tenant's manager, initializing it if needed. Concurrent
// callers for the same tenant share one initialization.
func (r *InventoryRegistry) Get(ctx context.Context, tenantID string) (*InventoryManager, error) {
	r.mu.Lock()
	if m, ok := r.managers[tenantID]; ok {
		r.mu.Unlock()
		return m, nil
	}
	if p, ok := r.pending[tenantID]; ok {
		r.mu.Unlock()
		select {
		case <-p.done:
			return p.m, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p := &pendingManager{done: make(chan struct{})}
	r.pending[tenantID] = p
	r.mu.Unlock()

	m := NewInventoryManager(tenantID, r.stock, r.orders, r.feed, WithStrictReservation(r.strict))
	err := m.Initialize(ctx)

	r.mu.Lock()
	delete(r.pending, tenantID)
	if err == nil {
		r.managers[tenantID] = m
		util.InventoryManagersActive.Set(float64(len(r.managers)))
		p.m = m
	} else {
		m.Close()
		p.err = err
	}
	r.mu.Unlock()
	close(p.done)

	return p.m, p.err
}

// Peek returns the tenant's manager only if it is already live
func (r *InventoryRegistry) Peek(tenantID string) (*InventoryManager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[tenantID]
	return m, ok
}

// Release closes and forgets the tenant's manager
func (r *InventoryRegistry) Release(tenantID string) {
	r.mu.Lock()
	m, ok := r.managers[tenantID]
	delete(r.managers, tenantID)
	util.InventoryManagersActive.Set(float64(len(r.managers)))
	r.mu.Unlock()

	if ok {
		m.Close()
	}
}

// Close releases every manager
func (r *InventoryRegistry) Close() {
	r.mu.Lock()
	managers := r.managers
	r.managers = make(map[string]*InventoryManager)
	util.InventoryManagersActive.Set(0)
	r.mu.Unlock()

	for _, m := range managers {
		m.Close()
	}
}
