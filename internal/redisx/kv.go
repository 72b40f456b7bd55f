package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-storefront/internal/kv"
	"github.com/redis/go-redis/v9"
)

// KV is the Redis-backed kv.Store. Every write is a whole-value SET followed by
// a PUBLISH of the writer's origin, so concurrent writers are last-write-wins.
type KV struct {
	rdb    *redis.Client
	origin string
}

var _ kv.Store = (*KV)(nil)

func NewKV(rdb *redis.Client, origin string) *KV {
	return &KV{rdb: rdb, origin: origin}
}

func (s *KV) Origin() string { return s.origin }

func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kv.ErrNotFound
	}
	return b, err
}

func (s *KV) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, value, 0)
		p.Publish(ctx, fmt.Sprintf(ChannelKVChanged, key), s.origin)
		return nil
	})
	return err
}

func (s *KV) Delete(ctx context.Context, key string) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.Publish(ctx, fmt.Sprintf(ChannelKVChanged, key), s.origin)
		return nil
	})
	return err
}

func (s *KV) Watch(ctx context.Context, key string) (<-chan kv.Change, error) {
	sub := s.rdb.Subscribe(ctx, fmt.Sprintf(ChannelKVChanged, key))
	// wait for the subscription confirmation so no write after Watch returns is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan kv.Change, 1)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				if m.Payload == s.origin {
					continue
				}
				kv.Notify(out, kv.Change{Key: key, Origin: m.Payload})
			}
		}
	}()
	return out, nil
}
