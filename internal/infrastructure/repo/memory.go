package repo

import (
	"context"
	"fmt"
	"sync"

	"lsp-backend/internal/domain"
)

type memoryEntry struct {
	order  *domain.Order
	secret domain.HoldInvoiceSecret
}

// MemoryOrderRepo keeps orders in process memory. Orders are copied on the
// way in and out so callers never share state with the store.
type MemoryOrderRepo struct {
	mu sync.RWMutex
	m  map[string]*memoryEntry
}

func NewMemoryOrderRepo() *MemoryOrderRepo {
	return &MemoryOrderRepo{m: make(map[string]*memoryEntry)}
}

func (r *MemoryOrderRepo) Create(_ context.Context, o *domain.Order, secret domain.HoldInvoiceSecret) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[o.OrderID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrOrderExists, o.OrderID)
	}
	r.m[o.OrderID] = &memoryEntry{order: o.Clone(), secret: copySecret(secret)}
	return nil
}

func (r *MemoryOrderRepo) Get(_ context.Context, id string) (*domain.Order, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.m[id]
	if !ok {
		return nil, false, nil
	}
	return e.order.Clone(), true, nil
}

func (r *MemoryOrderRepo) GetSecret(_ context.Context, id string) (*domain.HoldInvoiceSecret, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.m[id]
	if !ok {
		return nil, false, nil
	}
	s := copySecret(e.secret)
	return &s, true, nil
}

// Update applies fn to a copy of the order and stores the copy only if fn
// succeeds.
func (r *MemoryOrderRepo) Update(_ context.Context, id string, fn func(*domain.Order) error) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.m[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	next := e.order.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.OrderID != id {
		return nil, fmt.Errorf("order id changed from %s to %s", id, next.OrderID)
	}
	e.order = next
	return next.Clone(), nil
}

func (r *MemoryOrderRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

func (r *MemoryOrderRepo) Close() error { return nil }

func copySecret(s domain.HoldInvoiceSecret) domain.HoldInvoiceSecret {
	return domain.HoldInvoiceSecret{
		OrderID:     s.OrderID,
		Preimage:    append([]byte(nil), s.Preimage...),
		PaymentHash: append([]byte(nil), s.PaymentHash...),
	}
}
