package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated      = "OrderCreated"
	EventPaymentConfirmed  = "PaymentConfirmed"
	EventOrderCancelled    = "OrderCancelled"
	EventOrderStateChanged = "OrderStateChanged"
	EventOrderDeleted      = "OrderDeleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "bakery-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload tipe per event ----

type ItemPrice struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID    string      `json:"order_id"`
	CustomerID string      `json:"customer_id"`
	Items      []ItemPrice `json:"items"`
	CouponCode string      `json:"coupon_code,omitempty"`
	Total      string      `json:"total"`
	PaymentRef string      `json:"payment_ref"`
}

// Movements dipakai stockwatch untuk tahu bahan mana yang berubah.
type PaymentConfirmedPayload struct {
	OrderID   string          `json:"order_id"`
	ProofRef  string          `json:"proof_ref"`
	Movements []StockMovement `json:"movements"`
}

type OrderCancelledPayload struct {
	OrderID string `json:"order_id"`
}

type OrderStateChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}

type OrderDeletedPayload struct {
	OrderID  string          `json:"order_id"`
	Reversed []StockMovement `json:"reversed,omitempty"`
}

func ToItemPrices(items []OrderItem) []ItemPrice {
	out := make([]ItemPrice, 0, len(items))
	for _, it := range items {
		out = append(out, ItemPrice{ProductID: it.ProductID, Qty: it.Qty, UnitPrice: it.UnitPrice.StringFixed(2)})
	}
	return out
}

// IngredientIDs: bahan yang tersentuh oleh movements.
func IngredientIDs(ms []StockMovement) []string {
	var ids []string
	for _, m := range ms {
		if m.Kind == MovementIngredient {
			ids = append(ids, m.TargetID)
		}
	}
	return uniqueSorted(ids)
}
