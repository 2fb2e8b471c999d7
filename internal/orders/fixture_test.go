package orders

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// bogota: UTC-5 tanpa DST, tidak butuh tzdata di mesin test
var bogota = time.FixedZone("COT", -5*60*60)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// seedBakery: A butuh 2 X (stok 15) + 1 Y (unlimited, stok 0); A stok 10.
func seedBakery(st *MemoryStore) {
	st.PutIngredient(Ingredient{ID: "X", Name: "flour", Stock: dec("15"), Unit: "kg", ReorderLevel: dec("5")})
	st.PutIngredient(Ingredient{ID: "Y", Name: "water", Stock: dec("0"), Unlimited: true, Unit: "l"})
	st.PutProduct(Product{
		ID: "A", Name: "sourdough", Price: dec("100"), Stock: 10,
		Recipe: []RecipeLine{{IngredientID: "X", QtyRequired: dec("2")}, {IngredientID: "Y", QtyRequired: dec("1")}},
	})
	st.PutCoupon(Coupon{Code: "TENOFF", Percent: dec("10"), Active: true})
}

func newTestEngine(t *testing.T, st *MemoryStore) *Engine {
	t.Helper()
	clock := fixedClock{t: time.Date(2026, 10, 15, 15, 0, 0, 0, time.UTC)}
	var seq int64
	return &Engine{
		Store:   st,
		Coupons: &CouponValidator{Coupons: st, Clock: clock, Location: bogota},
		States:  NewStateSet([]string{"IN_PRODUCTION", "READY_FOR_PICKUP", "DELIVERED"}, []string{"DELIVERED"}),
		Clock:   clock,
		NewID: func() string {
			return fmt.Sprintf("0000000%d-aaaa-bbbb-cccc-000000000000", atomic.AddInt64(&seq, 1))
		},
	}
}

var homeDelivery = DeliveryInfo{RecipientName: "Ana", Address: "Cra 7 #12-40", Phone: "3001234567"}

func productStock(t *testing.T, st *MemoryStore, id string) int {
	t.Helper()
	ps, err := st.LoadProducts(context.Background(), []string{id})
	require.NoError(t, err)
	require.Len(t, ps, 1)
	return ps[0].Stock
}

func ingredientStock(t *testing.T, st *MemoryStore, id string) string {
	t.Helper()
	ins, err := st.LoadIngredients(context.Background(), []string{id})
	require.NoError(t, err)
	require.Len(t, ins, 1)
	return ins[0].Stock.String()
}
