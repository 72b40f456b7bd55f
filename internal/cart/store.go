package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/kv"
	"go.uber.org/zap"
)

// Notifier is told after every persisted mutation.
type Notifier interface {
	CartChanged()
}

type nopNotifier struct{}

func (nopNotifier) CartChanged() {}

// Store owns one cart key. Mutations within a Store are serialized; between
// Stores on different origins the last whole-value write wins.
type Store struct {
	kv     kv.Store
	key    string
	notify Notifier
	log    *zap.Logger
	mu     sync.Mutex
}

func NewStore(s kv.Store, key string, n Notifier, log *zap.Logger) *Store {
	if n == nil {
		n = nopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{kv: s, key: key, notify: n, log: log}
}

func (s *Store) Key() string { return s.key }

// Get never fails: a missing or corrupt record reads as an empty cart.
func (s *Store) Get(ctx context.Context) Cart {
	b, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.log.Warn("cart read failed", zap.String("key", s.key), zap.Error(err))
		}
		return Cart{Items: []Item{}}
	}
	var items []Item
	if err := json.Unmarshal(b, &items); err != nil {
		s.log.Warn("corrupt cart record treated as empty", zap.String("key", s.key), zap.Error(err))
		return Cart{Items: []Item{}}
	}
	out := make([]Item, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.ProductID == "" || seen[it.ProductID] || it.Quantity < 1 || it.Quantity > it.StockCeiling {
			continue
		}
		seen[it.ProductID] = true
		out = append(out, it)
	}
	return Cart{Items: out}
}

// Add puts qty units of p in the cart. The add is all-or-nothing: if the line
// would exceed its stock ceiling nothing is written.
func (s *Store) Add(ctx context.Context, p catalog.Product, qty int) (Cart, error) {
	if qty < 1 {
		return Cart{}, ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.Get(ctx)
	if i := c.index(p.ID); i >= 0 {
		line := &c.Items[i]
		// refresh the cached ceiling from the product we were just handed
		ceiling := p.Stock
		if line.Quantity+qty > ceiling {
			return c, &StockExceededError{ProductID: p.ID, MaxAddable: max(ceiling-line.Quantity, 0)}
		}
		line.Quantity += qty
		line.StockCeiling = ceiling
	} else {
		if qty > p.Stock {
			return c, &StockExceededError{ProductID: p.ID, MaxAddable: max(p.Stock, 0)}
		}
		c.Items = append(c.Items, NewItem(p, qty))
	}
	return c, s.write(ctx, c)
}

// SetQuantity clamps qty into [1, stock ceiling].
func (s *Store) SetQuantity(ctx context.Context, productID string, qty int) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.Get(ctx)
	i := c.index(productID)
	if i < 0 {
		return c, ErrItemNotFound
	}
	c.Items[i].Quantity = clamp(qty, 1, c.Items[i].StockCeiling)
	return c, s.write(ctx, c)
}

// Decrement takes one unit off a line and drops the line when it reaches zero.
func (s *Store) Decrement(ctx context.Context, productID string) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.Get(ctx)
	i := c.index(productID)
	if i < 0 {
		return c, ErrItemNotFound
	}
	if c.Items[i].Quantity <= 1 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	} else {
		c.Items[i].Quantity--
	}
	return c, s.write(ctx, c)
}

// Remove drops a line; an unknown id is a no-op.
func (s *Store) Remove(ctx context.Context, productID string) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.Get(ctx)
	i := c.index(productID)
	if i < 0 {
		return c, nil
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return c, s.write(ctx, c)
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, Cart{Items: []Item{}})
}

func (s *Store) write(ctx context.Context, c Cart) error {
	if c.Items == nil {
		c.Items = []Item{}
	}
	b, err := json.Marshal(c.Items)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.key, b); err != nil {
		return err
	}
	s.notify.CartChanged()
	return nil
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	return min(max(v, lo), hi)
}
