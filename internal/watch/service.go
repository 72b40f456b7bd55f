// Package watch follows the order lifecycle topic and keeps an up-to-date
// copy of the admin statistics in Redis.
package watch

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Service struct {
	Engine      *orders.Engine
	Redis       *redis.Client
	ServiceName string
	Log         *zap.Logger
}

// HandleOrderEvent is the consumer handler for orders.lifecycle.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		return err
	}
	switch env.EventType {
	case orders.EventOrderCreated, orders.EventOrderUpdated, orders.EventOrderDeleted:
	default:
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	seen, err := redisx.SeenBefore(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.LifecyclePayload](env.Payload)
	if err != nil {
		return err
	}

	// stats are recomputed from the full collection, never patched from the event
	if err := s.Engine.Refresh(ctx); err != nil {
		_ = s.Redis.Del(ctx, dkey).Err()
		return err
	}
	stats := s.Engine.Stats()
	if err := s.Redis.Set(ctx, redisx.KeyOrderStats, kafkax.MustMarshal(stats), redisx.TTLStats).Err(); err != nil {
		_ = s.Redis.Del(ctx, dkey).Err()
		return err
	}

	s.log().Info("order event applied",
		zap.String("event_type", env.EventType),
		zap.String("order_id", p.OrderID),
		zap.String("status", string(p.Status)),
		zap.Int("orders", stats.Total),
		zap.Int("delivered", stats.Count(orders.StatusDelivered)),
		zap.String("revenue", stats.Revenue.String()),
	)
	return nil
}

// StatsCache reads the statistics HandleOrderEvent last stored.
type StatsCache struct {
	Redis *redis.Client
}

// CachedStats reports false when nothing is stored or the copy expired.
func (c StatsCache) CachedStats(ctx context.Context) (orders.Stats, bool, error) {
	raw, err := c.Redis.Get(ctx, redisx.KeyOrderStats).Bytes()
	if err == redis.Nil {
		return orders.Stats{}, false, nil
	}
	if err != nil {
		return orders.Stats{}, false, err
	}
	var st orders.Stats
	if err := json.Unmarshal(raw, &st); err != nil {
		return orders.Stats{}, false, err
	}
	return st, true, nil
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
