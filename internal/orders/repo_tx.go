package orders

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const forUpdate = " FOR UPDATE"

// repoTx: lock order & stok (FOR UPDATE) -> validasi ulang -> tulis; commit atau rollback semuanya.
// Row dikunci dengan urutan id supaya dua confirm paralel tidak deadlock.
type repoTx struct{ tx pgx.Tx }

func (t *repoTx) LoadProducts(ctx context.Context, ids []string) ([]Product, error) {
	return loadProducts(ctx, t.tx, ids, forUpdate)
}

func (t *repoTx) LoadIngredients(ctx context.Context, ids []string) ([]Ingredient, error) {
	return loadIngredients(ctx, t.tx, ids, forUpdate)
}

func (t *repoTx) LockOrder(ctx context.Context, id string) (Order, error) {
	return getOrder(ctx, t.tx, id, forUpdate)
}

func (t *repoTx) UpdateOrder(ctx context.Context, o Order) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET status=$2, notes=$3, stock_applied=$4, updated_at=$5
		WHERE id=$1`, o.ID, string(o.Status), o.Notes, o.StockApplied, o.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: order %s", ErrNotFound, o.ID)
	}
	return nil
}

// order_items & stock_movements ikut terhapus (ON DELETE CASCADE)
func (t *repoTx) DeleteOrder(ctx context.Context, id string) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return nil
}

func (t *repoTx) AdjustProductStock(ctx context.Context, id string, delta int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`, id, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	return nil
}

func (t *repoTx) AdjustIngredientStock(ctx context.Context, id string, delta decimal.Decimal) error {
	ct, err := t.tx.Exec(ctx, `UPDATE ingredients SET stock = stock + $2::text::numeric, updated_at = now() WHERE id=$1`,
		id, delta.String())
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: ingredient %s", ErrNotFound, id)
	}
	return nil
}

func (t *repoTx) RecordMovements(ctx context.Context, ms []StockMovement) error {
	for _, m := range ms {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO stock_movements(order_id, kind, target_id, qty)
			VALUES ($1, $2, $3, $4::text::numeric)`,
			m.OrderID, string(m.Kind), m.TargetID, m.Qty.String()); err != nil {
			return err
		}
	}
	return nil
}

func (t *repoTx) Movements(ctx context.Context, orderID string) ([]StockMovement, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT order_id, kind, target_id, qty::text FROM stock_movements
		WHERE order_id=$1 ORDER BY kind DESC, target_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StockMovement
	for rows.Next() {
		var m StockMovement
		var kind string
		if err := rows.Scan(&m.OrderID, &kind, &m.TargetID, &m.Qty); err != nil {
			return nil, err
		}
		m.Kind = MovementKind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}
