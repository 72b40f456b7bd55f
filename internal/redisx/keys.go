package redisx

import "time"

const (
	// Cart per owner: cart:{owner} -> JSON array of line items
	KeyCart = "cart:%s"

	// Prior checkout snapshot used for pre-fill: checkout:draft:{owner}
	KeyCheckoutDraft = "checkout:draft:%s"

	// Reserved for the wishlist surface; read-adjacent to the cart.
	KeyWishlist = "wishlist:%s"

	// Idempotency create order: idem:order:create:{idempotency_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Last recomputed admin statistics, JSON
	KeyOrderStats = "order_stats"

	// Pub/sub channel announcing a write to a kv key: kv:changed:{key}
	ChannelKVChanged = "kv:changed:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
	TTLStats       = 5 * time.Minute
)
