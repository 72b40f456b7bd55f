// Package cartsync fans cart-changed signals out to every surface showing
// cart-derived data. Local signals come from this process's cart.Store and are
// delivered synchronously, after the write is persisted. Remote signals come
// from writes by other origins on the same storage key and are delivered from
// the relay goroutine. Subscribers re-read the cart in either case.
package cartsync

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-storefront/internal/kv"
	"go.uber.org/zap"
)

type Source int

const (
	Local Source = iota
	Remote
)

func (s Source) String() string {
	if s == Remote {
		return "remote"
	}
	return "local"
}

type Event struct {
	Source Source
	Origin string // writer origin, set for Remote events
}

type Handler func(Event)

type Bus struct {
	mu   sync.RWMutex
	subs map[uint64]Handler
	next uint64
	log  *zap.Logger
}

func New(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{subs: make(map[uint64]Handler), log: log}
}

// Subscribe registers h and returns the function releasing it. Calling the
// release function more than once is harmless.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Len reports the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// CartChanged implements cart.Notifier.
func (b *Bus) CartChanged() {
	b.dispatch(Event{Source: Local})
}

// Relay forwards remote writes on key to subscribers until ctx is done.
func (b *Bus) Relay(ctx context.Context, store kv.Store, key string) error {
	changes, err := store.Watch(ctx, key)
	if err != nil {
		return err
	}
	go func() {
		for c := range changes {
			b.log.Debug("remote cart change", zap.String("key", c.Key), zap.String("origin", c.Origin))
			b.dispatch(Event{Source: Remote, Origin: c.Origin})
		}
	}()
	return nil
}

func (b *Bus) dispatch(ev Event) {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
}
