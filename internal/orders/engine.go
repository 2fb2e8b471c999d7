package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine owns the order state machine and is the only writer of stock.
type Engine struct {
	Store   Store
	Coupons *CouponValidator
	States  StateSet
	Clock   Clock
	NewID   func() string
}

type CreateInput struct {
	CustomerID string
	Items      []ItemQty
	CouponCode string
	Delivery   DeliveryInfo
	IdemKey    string // opsional; create ulang dengan key sama mengembalikan order lama
}

// Batas qty per product (setelah digabung) dan jumlah baris per order.
const (
	MaxItemQty    = 1000
	MaxOrderLines = 100
)

// Receipt is what a successful confirmation changed.
type Receipt struct {
	Order     Order
	Movements []StockMovement
}

// Transition: hasil perubahan status oleh admin.
type Transition struct {
	Order Order
	From  Status
}

func (e *Engine) now() Clock {
	if e.Clock == nil {
		return SystemClock{}
	}
	return e.Clock
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func validateItems(items []ItemQty) error {
	if len(items) == 0 {
		return validationf("items must not be empty")
	}
	if len(items) > MaxOrderLines {
		return validationf("too many items (max %d)", MaxOrderLines)
	}
	for _, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return validationf("item without product_id")
		}
		if it.Qty < 1 || it.Qty > MaxItemQty {
			return validationf("invalid qty for product %s (1..%d)", it.ProductID, MaxItemQty)
		}
	}
	return nil
}

// normalizeItems validates the lines, merges duplicates and validates again,
// so a merged quantity stays within the same bounds as a single line.
func normalizeItems(items []ItemQty) ([]ItemQty, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}
	merged := MergeItems(items)
	if err := validateItems(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func productIDs(items []ItemQty) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

// loadSnapshot: product yang hilang bukan error, nanti jadi conflict.
func loadSnapshot(ctx context.Context, r CatalogReader, items []ItemQty) (*Snapshot, error) {
	snap, err := LoadSnapshot(ctx, r, productIDs(items))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load recipes: %w", err)
	}
	return snap, nil
}

// ValidateAvailability is the read-only pre-checkout check.
func (e *Engine) ValidateAvailability(ctx context.Context, items []ItemQty) (Availability, error) {
	items, err := normalizeItems(items)
	if err != nil {
		return Availability{}, err
	}
	snap, err := loadSnapshot(ctx, e.Store, items)
	if err != nil {
		return Availability{}, err
	}
	return Validate(items, snap), nil
}

// Create records a PENDING_PAYMENT order. Nothing is reserved; stock is only
// checked so the customer hears about conflicts early. With an idempotency key
// a repeated call returns the order already stored and existed=true.
func (e *Engine) Create(ctx context.Context, in CreateInput) (Order, bool, error) {
	if strings.TrimSpace(in.CustomerID) == "" {
		return Order{}, false, validationf("missing customer")
	}
	in.IdemKey = strings.TrimSpace(in.IdemKey)
	if in.IdemKey != "" {
		o, err := e.Store.FindOrderByKey(ctx, in.CustomerID, in.IdemKey)
		if err == nil {
			return o, true, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Order{}, false, fmt.Errorf("find by idempotency key: %w", err)
		}
	}

	items, err := normalizeItems(in.Items)
	if err != nil {
		return Order{}, false, err
	}
	if !in.Delivery.Complete() {
		return Order{}, false, validationf("delivery address and phone are required")
	}

	snap, err := loadSnapshot(ctx, e.Store, items)
	if err != nil {
		return Order{}, false, err
	}
	if av := Validate(items, snap); !av.Valid {
		return Order{}, false, &StockConflictError{Conflicts: av.Conflicts}
	}

	o := Order{
		ID:         e.newID(),
		CustomerID: in.CustomerID,
		Status:     StatusPendingPayment,
		Delivery:   in.Delivery,
		IdemKey:    in.IdemKey,
		Subtotal:   decimal.Zero,
	}
	for _, it := range items {
		p, _ := snap.Product(it.ProductID)
		line := OrderItem{ProductID: p.ID, Qty: it.Qty, UnitPrice: p.Price}
		o.Items = append(o.Items, line)
		o.Subtotal = o.Subtotal.Add(line.LineTotal())
	}

	discount, coupon, err := e.Coupons.Apply(ctx, in.CouponCode, o.Subtotal)
	if err != nil {
		return Order{}, false, err
	}
	if coupon != nil {
		o.CouponCode = coupon.Code
	}
	o.Discount = discount
	o.Total = o.Subtotal.Sub(discount)
	o.PaymentRef = PaymentReference(o.ID)
	o.CreatedAt = e.now().Now().UTC()
	o.UpdatedAt = o.CreatedAt

	saved, existed, err := e.Store.InsertOrder(ctx, o)
	if err != nil {
		return Order{}, false, fmt.Errorf("insert order: %w", err)
	}
	if existed {
		// request paralel dengan key yang sama sudah menang duluan
		zap.L().Info("order create replayed", zap.String("order_id", saved.ID))
		return saved, true, nil
	}
	zap.L().Info("order created",
		zap.String("order_id", saved.ID),
		zap.String("customer_id", saved.CustomerID),
		zap.String("total", saved.Total.StringFixed(2)),
	)
	return saved, false, nil
}

// Get returns the order if customerID owns it. Admin callers pass an empty
// customerID.
func (e *Engine) Get(ctx context.Context, orderID, customerID string) (Order, error) {
	o, err := e.Store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if customerID != "" && o.CustomerID != customerID {
		return Order{}, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return o, nil
}

func lockOwned(ctx context.Context, tx Tx, orderID, customerID string) (Order, error) {
	o, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.CustomerID != customerID {
		// jangan bocorkan bahwa order milik orang lain
		return Order{}, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return o, nil
}

// ConfirmPayment re-validates against current stock and, in one transaction,
// draws the order's stock and moves it to CONFIRMED. A conflict leaves the
// order pending so the customer can retry or cancel.
func (e *Engine) ConfirmPayment(ctx context.Context, orderID, customerID, proofRef string) (Receipt, error) {
	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return Receipt{}, validationf("missing payment proof reference")
	}

	var rc Receipt
	err := e.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := lockOwned(ctx, tx, orderID, customerID)
		if err != nil {
			return err
		}
		if !CanCustomerTransition(o.Status, StatusConfirmed) || o.StockApplied {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, o.ID, o.Status)
		}

		items := make([]ItemQty, 0, len(o.Items))
		for _, it := range o.Items {
			items = append(items, ItemQty{ProductID: it.ProductID, Qty: it.Qty})
		}
		items = MergeItems(items)

		snap, err := loadSnapshot(ctx, tx, items)
		if err != nil {
			return err
		}
		if av := Validate(items, snap); !av.Valid {
			return &StockConflictError{Conflicts: av.Conflicts}
		}
		if cs := SharedShortfall(items, snap); len(cs) > 0 {
			return &StockConflictError{Conflicts: cs}
		}

		ms := movementsFor(o.ID, ComputeConsumption(items, snap))
		for _, m := range ms {
			if err := applyMovement(ctx, tx, m, -1); err != nil {
				return err
			}
		}
		if err := tx.RecordMovements(ctx, ms); err != nil {
			return fmt.Errorf("record movements: %w", err)
		}

		o.Status = StatusConfirmed
		o.StockApplied = true
		o.Notes = proofRef
		o.UpdatedAt = e.now().Now().UTC()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		rc = Receipt{Order: o, Movements: ms}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	zap.L().Info("payment confirmed",
		zap.String("order_id", rc.Order.ID),
		zap.Int("movements", len(rc.Movements)),
	)
	return rc, nil
}

// Cancel moves a pending order to CANCELLED. Stock was never drawn, so none
// is returned.
func (e *Engine) Cancel(ctx context.Context, orderID, customerID string) (Order, error) {
	var out Order
	err := e.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := lockOwned(ctx, tx, orderID, customerID)
		if err != nil {
			return err
		}
		if !CanCustomerTransition(o.Status, StatusCancelled) {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, o.ID, o.Status)
		}
		o.Status = StatusCancelled
		o.UpdatedAt = e.now().Now().UTC()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		out = o
		return nil
	})
	return out, err
}

// AdminSetState moves an order through fulfillment states. No stock moves.
func (e *Engine) AdminSetState(ctx context.Context, orderID string, to Status) (Transition, error) {
	to = Status(normalizeState(string(to)))
	if to == "" {
		return Transition{}, validationf("missing state")
	}
	var tr Transition
	err := e.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !e.States.CanAdminTransition(o, to) {
			return fmt.Errorf("%w: order %s %s -> %s", ErrInvalidTransition, o.ID, o.Status, to)
		}
		tr.From = o.Status
		o.Status = to
		o.UpdatedAt = e.now().Now().UTC()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		tr.Order = o
		return nil
	})
	if err != nil {
		return Transition{}, err
	}
	zap.L().Info("order state changed",
		zap.String("order_id", orderID),
		zap.String("from", string(tr.From)),
		zap.String("to", string(to)),
	)
	return tr, nil
}

// Delete removes an order. If its stock had been drawn, exactly the recorded
// movements are put back in the same transaction.
func (e *Engine) Delete(ctx context.Context, orderID string) ([]StockMovement, error) {
	var reversed []StockMovement
	err := e.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.StockApplied {
			ms, err := tx.Movements(ctx, o.ID)
			if err != nil {
				return fmt.Errorf("load movements: %w", err)
			}
			for _, m := range ms {
				if err := applyMovement(ctx, tx, m, 1); err != nil {
					return err
				}
			}
			reversed = ms
		}
		if err := tx.DeleteOrder(ctx, o.ID); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("order deleted", zap.String("order_id", orderID), zap.Int("reversed", len(reversed)))
	return reversed, nil
}

func movementsFor(orderID string, c Consumption) []StockMovement {
	ms := make([]StockMovement, 0, len(c.Products)+len(c.Ingredients))
	for id, q := range c.Products {
		ms = append(ms, StockMovement{OrderID: orderID, Kind: MovementProduct, TargetID: id, Qty: decimal.NewFromInt(int64(q))})
	}
	for id, q := range c.Ingredients {
		ms = append(ms, StockMovement{OrderID: orderID, Kind: MovementIngredient, TargetID: id, Qty: q})
	}
	// urutan tetap: products dulu lalu ingredients, masing-masing by id
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Kind != ms[j].Kind {
			return ms[i].Kind == MovementProduct
		}
		return ms[i].TargetID < ms[j].TargetID
	})
	return ms
}

func applyMovement(ctx context.Context, tx Tx, m StockMovement, sign int64) error {
	switch m.Kind {
	case MovementProduct:
		if err := tx.AdjustProductStock(ctx, m.TargetID, int(sign*m.Qty.IntPart())); err != nil {
			return fmt.Errorf("adjust product %s: %w", m.TargetID, err)
		}
	case MovementIngredient:
		if err := tx.AdjustIngredientStock(ctx, m.TargetID, m.Qty.Mul(decimal.NewFromInt(sign))); err != nil {
			return fmt.Errorf("adjust ingredient %s: %w", m.TargetID, err)
		}
	default:
		return fmt.Errorf("unknown movement kind %q", m.Kind)
	}
	return nil
}
