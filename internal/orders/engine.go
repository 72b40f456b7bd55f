package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrConfirmationRequired = errors.New("deleting an order must be confirmed")
	ErrInvalidTransition    = errors.New("status transition not allowed")
	ErrNegativeAmount       = errors.New("amounts must not be negative")
)

// Backend is the admin side of the order REST API.
type Backend interface {
	ListOrders(ctx context.Context) ([]Order, error)
	UpdateOrder(ctx context.Context, id string, req UpdateRequest) (Order, error)
	DeleteOrder(ctx context.Context, id string) error
}

// Engine holds the admin console's projection of the order collection. The
// backend stays the system of record: the projection only changes after a
// backend call succeeds, and Stats are recomputed in full on every change.
type Engine struct {
	backend Backend
	log     *zap.Logger
	now     func() time.Time
	strict  bool

	mu     sync.RWMutex
	orders []Order
	stats  Stats
	loaded bool

	refresh singleflight.Group
}

type EngineOption func(*Engine)

// WithStrictTransitions rejects status changes outside the fulfilment graph.
func WithStrictTransitions() EngineOption {
	return func(e *Engine) { e.strict = true }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

func NewEngine(b Backend, opts ...EngineOption) *Engine {
	e := &Engine{
		backend: b,
		log:     zap.NewNop(),
		now:     time.Now,
		stats:   ComputeStats(nil),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Refresh reloads the projection. Concurrent callers share one backend call.
func (e *Engine) Refresh(ctx context.Context) error {
	_, err, _ := e.refresh.Do("orders", func() (any, error) {
		list, err := e.backend.ListOrders(ctx)
		if err != nil {
			return nil, err
		}
		e.Replace(list)
		return nil, nil
	})
	if err != nil {
		e.log.Warn("order refresh failed", zap.Error(err))
	}
	return err
}

// Loaded reports whether a Refresh or Replace has happened.
func (e *Engine) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded
}

func (e *Engine) Replace(list []Order) {
	cp := make([]Order, len(list))
	copy(cp, list)

	e.mu.Lock()
	e.orders = cp
	e.loaded = true
	e.recompute()
	e.mu.Unlock()
}

func (e *Engine) Orders() []Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Order, len(e.orders))
	copy(out, e.orders)
	return out
}

func (e *Engine) List(f Filter) []Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Apply(e.orders, f, e.now())
}

func (e *Engine) Get(id string) (Order, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i := e.index(id); i >= 0 {
		return e.orders[i], true
	}
	return Order{}, false
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// Update sends p as a full replacement with the total derived from it. On
// failure the projection is left as it was.
func (e *Engine) Update(ctx context.Context, id string, p Patch) (Order, error) {
	if !p.Status.Valid() {
		return Order{}, fmt.Errorf("%w: order status %q", ErrInvalidStatus, p.Status)
	}
	if !p.PaymentStatus.Valid() {
		return Order{}, fmt.Errorf("%w: payment status %q", ErrInvalidStatus, p.PaymentStatus)
	}
	if p.Subtotal.IsNegative() || p.Tax.IsNegative() || p.Shipping.IsNegative() {
		return Order{}, ErrNegativeAmount
	}
	if e.strict {
		cur, ok := e.Get(id)
		if !ok {
			return Order{}, ErrOrderNotFound
		}
		if !CanTransition(cur.Status, p.Status) {
			return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, p.Status)
		}
	}

	req := p.Request()
	updated, err := e.backend.UpdateOrder(ctx, id, req)
	if err != nil {
		e.log.Warn("order update failed", zap.String("order_id", id), zap.Error(err))
		return Order{}, err
	}

	e.mu.Lock()
	if i := e.index(id); i >= 0 {
		e.orders[i] = updated
	} else {
		e.orders = append(e.orders, updated)
	}
	e.recompute()
	e.mu.Unlock()

	e.log.Info("order updated",
		zap.String("order_id", id),
		zap.String("status", string(updated.Status)),
		zap.String("payment_status", string(updated.PaymentStatus)),
		zap.String("total", updated.Total.String()),
	)
	return updated, nil
}

// Delete removes an order for good. confirmed must carry the admin's explicit
// confirmation.
func (e *Engine) Delete(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	if err := e.backend.DeleteOrder(ctx, id); err != nil {
		e.log.Warn("order delete failed", zap.String("order_id", id), zap.Error(err))
		return err
	}

	e.mu.Lock()
	if i := e.index(id); i >= 0 {
		e.orders = append(e.orders[:i], e.orders[i+1:]...)
	}
	e.recompute()
	e.mu.Unlock()

	e.log.Info("order deleted", zap.String("order_id", id))
	return nil
}

// caller holds e.mu
func (e *Engine) recompute() {
	e.stats = ComputeStats(e.orders)
}

// caller holds e.mu
func (e *Engine) index(id string) int {
	for i, o := range e.orders {
		if o.ID == id {
			return i
		}
	}
	return -1
}
