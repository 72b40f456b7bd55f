// Package kv is the durable key-value storage the cart and checkout drafts
// live in. A Store handle belongs to one origin (a storefront process); Watch
// reports writes made through other origins only, the way a browser storage
// event never fires in the tab that made the change.
package kv

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("kv: key not found")

// Change is a write observed on a watched key.
type Change struct {
	Key    string
	Origin string
}

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Watch delivers changes to key written by other origins until ctx is done,
	// then closes the channel. Bursts may be coalesced into one Change.
	Watch(ctx context.Context, key string) (<-chan Change, error)
	Origin() string
}

// Notify does a non-blocking send on a buffer-1 channel. Receivers re-read the
// key, so dropping a change while one is already pending loses nothing.
func Notify(ch chan Change, c Change) {
	select {
	case ch <- c:
	default:
	}
}
