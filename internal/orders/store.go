package orders

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store is the catalog store the engine runs on. Reads outside InTx are
// read-committed; everything that moves stock happens inside InTx.
type Store interface {
	CatalogReader
	CouponReader
	GetOrder(ctx context.Context, id string) (Order, error)
	// InsertOrder is idempotent on (customer, idempotency key): when a key is
	// set and already taken, nothing is written and the stored order comes
	// back with existed=true.
	InsertOrder(ctx context.Context, o Order) (saved Order, existed bool, err error)
	FindOrderByKey(ctx context.Context, customerID, key string) (Order, error)
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx: semua read di sini mengunci row sampai commit/rollback.
type Tx interface {
	CatalogReader
	LockOrder(ctx context.Context, id string) (Order, error)
	UpdateOrder(ctx context.Context, o Order) error
	DeleteOrder(ctx context.Context, id string) error
	AdjustProductStock(ctx context.Context, id string, delta int) error
	AdjustIngredientStock(ctx context.Context, id string, delta decimal.Decimal) error
	RecordMovements(ctx context.Context, ms []StockMovement) error
	Movements(ctx context.Context, orderID string) ([]StockMovement, error)
}
