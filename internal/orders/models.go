package orders

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Ingredient struct {
	ID           string
	Name         string
	Stock        decimal.Decimal // boleh negatif sementara (concurrent write)
	Unlimited    bool
	Unit         string // display only
	ReorderLevel decimal.Decimal
}

type RecipeLine struct {
	IngredientID string
	QtyRequired  decimal.Decimal // per 1 unit product, > 0
}

type Product struct {
	ID     string
	Name   string
	Price  decimal.Decimal
	Stock  int
	Recipe []RecipeLine
}

type DeliveryInfo struct {
	RecipientName string `json:"recipient_name,omitempty"`
	Address       string `json:"address"`
	Phone         string `json:"phone"`
	Notes         string `json:"notes,omitempty"`
}

// Complete: address & phone wajib.
func (d DeliveryInfo) Complete() bool {
	return strings.TrimSpace(d.Address) != "" && strings.TrimSpace(d.Phone) != ""
}

type Order struct {
	ID           string
	CustomerID   string
	Status       Status
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	CouponCode   string
	Delivery     DeliveryInfo
	PaymentRef   string
	Notes        string // proof of payment ref setelah confirm
	StockApplied bool
	IdemKey      string // unik per customer; kosong = tanpa Idempotency-Key
	Items        []OrderItem
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type OrderItem struct {
	ProductID string
	Qty       int
	UnitPrice decimal.Decimal // snapshot harga saat order, jangan dihitung ulang
}

func (it OrderItem) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Qty)))
}

type Coupon struct {
	Code      string
	Percent   decimal.Decimal // 0..100
	Active    bool
	ExpiresOn *time.Time // tanggal saja, jam diabaikan
}

type MovementKind string

const (
	MovementProduct    MovementKind = "PRODUCT"
	MovementIngredient MovementKind = "INGREDIENT"
)

// StockMovement: jejak pengurangan stok per order, dipakai untuk reversal saat delete.
type StockMovement struct {
	OrderID  string          `json:"order_id"`
	Kind     MovementKind    `json:"kind"`
	TargetID string          `json:"target_id"`
	Qty      decimal.Decimal `json:"qty"`
}
