package redisx

import "time"

const (
	// Idempotency create order: idem:order:create:{customer_id}:{idempotency_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Cache order: order:{order_id} -> JSON order view
	KeyOrderView = "order:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Sorted set bahan yang stoknya <= reorder level, score = stok saat ini
	KeyLowStock = "stock:low"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
