package orders

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryStore keeps the catalog in process. Transactions are serialised by one
// mutex and work on a copy that replaces the live data only on commit, so a
// failed transaction leaves nothing behind. Meant for tests and local runs; a
// multi-instance deployment uses the postgres Repo.
type MemoryStore struct {
	mu   sync.Mutex
	data memData
}

type memData struct {
	products    map[string]Product
	ingredients map[string]Ingredient
	coupons     map[string]Coupon
	orders      map[string]Order
	movements   map[string][]StockMovement
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: memData{
		products:    map[string]Product{},
		ingredients: map[string]Ingredient{},
		coupons:     map[string]Coupon{},
		orders:      map[string]Order{},
		movements:   map[string][]StockMovement{},
	}}
}

func (d memData) clone() memData {
	out := memData{
		products:    make(map[string]Product, len(d.products)),
		ingredients: make(map[string]Ingredient, len(d.ingredients)),
		coupons:     make(map[string]Coupon, len(d.coupons)),
		orders:      make(map[string]Order, len(d.orders)),
		movements:   make(map[string][]StockMovement, len(d.movements)),
	}
	for k, v := range d.products {
		v.Recipe = append([]RecipeLine(nil), v.Recipe...)
		out.products[k] = v
	}
	for k, v := range d.ingredients {
		out.ingredients[k] = v
	}
	for k, v := range d.coupons {
		out.coupons[k] = v
	}
	for k, v := range d.orders {
		out.orders[k] = copyOrder(v)
	}
	for k, v := range d.movements {
		out.movements[k] = append([]StockMovement(nil), v...)
	}
	return out
}

func copyOrder(o Order) Order {
	o.Items = append([]OrderItem(nil), o.Items...)
	return o
}

// ---- seeding (catalog management lives outside the engine) ----

func (s *MemoryStore) PutProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Recipe = append([]RecipeLine(nil), p.Recipe...)
	s.data.products[p.ID] = p
}

func (s *MemoryStore) PutIngredient(in Ingredient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ingredients[in.ID] = in
}

func (s *MemoryStore) PutCoupon(c Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.coupons[c.Code] = c
}

// ---- Store ----

func (s *MemoryStore) LoadProducts(ctx context.Context, ids []string) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.loadProducts(ids), nil
}

func (s *MemoryStore) LoadIngredients(ctx context.Context, ids []string) ([]Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.loadIngredients(ids), nil
}

func (s *MemoryStore) GetCoupon(ctx context.Context, code string) (Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.coupons[code]
	if !ok {
		return Coupon{}, fmt.Errorf("%w: coupon %s", ErrNotFound, code)
	}
	return c, nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, id string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.data.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return copyOrder(o), nil
}

func (s *MemoryStore) InsertOrder(ctx context.Context, o Order) (Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.data.orderByKey(o.CustomerID, o.IdemKey); ok {
		return copyOrder(prev), true, nil
	}
	if _, ok := s.data.orders[o.ID]; ok {
		return Order{}, false, fmt.Errorf("order %s already exists", o.ID)
	}
	s.data.orders[o.ID] = copyOrder(o)
	return copyOrder(o), false, nil
}

func (s *MemoryStore) FindOrderByKey(ctx context.Context, customerID, key string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.data.orderByKey(customerID, key)
	if !ok {
		return Order{}, fmt.Errorf("%w: idempotency key %s", ErrNotFound, key)
	}
	return copyOrder(o), nil
}

// linear scan cukup untuk store lokal/test
func (d memData) orderByKey(customerID, key string) (Order, bool) {
	if key == "" {
		return Order{}, false
	}
	for _, o := range d.orders {
		if o.CustomerID == customerID && o.IdemKey == key {
			return o, true
		}
	}
	return Order{}, false
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.data.clone()
	if err := fn(ctx, &memTx{d: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (d memData) loadProducts(ids []string) []Product {
	var out []Product
	for _, id := range uniqueSorted(ids) {
		if p, ok := d.products[id]; ok {
			p.Recipe = append([]RecipeLine(nil), p.Recipe...)
			out = append(out, p)
		}
	}
	return out
}

func (d memData) loadIngredients(ids []string) []Ingredient {
	var out []Ingredient
	for _, id := range uniqueSorted(ids) {
		if in, ok := d.ingredients[id]; ok {
			out = append(out, in)
		}
	}
	return out
}

type memTx struct{ d memData }

func (t *memTx) LoadProducts(ctx context.Context, ids []string) ([]Product, error) {
	return t.d.loadProducts(ids), nil
}

func (t *memTx) LoadIngredients(ctx context.Context, ids []string) ([]Ingredient, error) {
	return t.d.loadIngredients(ids), nil
}

func (t *memTx) LockOrder(ctx context.Context, id string) (Order, error) {
	o, ok := t.d.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return copyOrder(o), nil
}

func (t *memTx) UpdateOrder(ctx context.Context, o Order) error {
	cur, ok := t.d.orders[o.ID]
	if !ok {
		return fmt.Errorf("%w: order %s", ErrNotFound, o.ID)
	}
	// item & harga historis tidak pernah diubah
	o.Items = cur.Items
	t.d.orders[o.ID] = o
	return nil
}

func (t *memTx) DeleteOrder(ctx context.Context, id string) error {
	if _, ok := t.d.orders[id]; !ok {
		return fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	delete(t.d.orders, id)
	delete(t.d.movements, id)
	return nil
}

func (t *memTx) AdjustProductStock(ctx context.Context, id string, delta int) error {
	p, ok := t.d.products[id]
	if !ok {
		return fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	p.Stock += delta
	t.d.products[id] = p
	return nil
}

func (t *memTx) AdjustIngredientStock(ctx context.Context, id string, delta decimal.Decimal) error {
	in, ok := t.d.ingredients[id]
	if !ok {
		return fmt.Errorf("%w: ingredient %s", ErrNotFound, id)
	}
	in.Stock = in.Stock.Add(delta)
	t.d.ingredients[id] = in
	return nil
}

func (t *memTx) RecordMovements(ctx context.Context, ms []StockMovement) error {
	for _, m := range ms {
		t.d.movements[m.OrderID] = append(t.d.movements[m.OrderID], m)
	}
	return nil
}

func (t *memTx) Movements(ctx context.Context, orderID string) ([]StockMovement, error) {
	return append([]StockMovement(nil), t.d.movements[orderID]...), nil
}
