package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// numeric dikirim & dibaca sebagai text supaya decimal tidak kehilangan presisi
const (
	selectProducts = `SELECT id, name, price::text, stock FROM products WHERE id = ANY($1) ORDER BY id`
	selectRecipes  = `SELECT product_id, ingredient_id, qty_required::text FROM recipe_lines
	                  WHERE product_id = ANY($1) ORDER BY product_id, ingredient_id`
	selectIngredients = `SELECT id, name, stock::text, unlimited, unit, reorder_level::text
	                     FROM ingredients WHERE id = ANY($1) ORDER BY id`
	selectOrder = `SELECT id, customer_id, status, subtotal::text, discount::text, total::text,
	                      COALESCE(coupon_code, ''), delivery, payment_ref, notes, stock_applied,
	                      COALESCE(idempotency_key, ''), created_at, updated_at
	               FROM orders`
	selectOrderItems = `SELECT product_id, qty, unit_price::text FROM order_items
	                    WHERE order_id=$1 ORDER BY line_no`
)

const (
	byID  = ` WHERE id=$1`
	byKey = ` WHERE customer_id=$1 AND idempotency_key=$2`
)

// querier: *pgxpool.Pool dan pgx.Tx sama-sama memenuhi ini.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) LoadProducts(ctx context.Context, ids []string) ([]Product, error) {
	return loadProducts(ctx, r.DB, ids, "")
}

func (r *Repo) LoadIngredients(ctx context.Context, ids []string) ([]Ingredient, error) {
	return loadIngredients(ctx, r.DB, ids, "")
}

func (r *Repo) GetCoupon(ctx context.Context, code string) (Coupon, error) {
	var c Coupon
	err := r.DB.QueryRow(ctx, `SELECT code, percent::text, active, expires_on FROM coupons WHERE code=$1`, code).
		Scan(&c.Code, &c.Percent, &c.Active, &c.ExpiresOn)
	if errors.Is(err, pgx.ErrNoRows) {
		return Coupon{}, fmt.Errorf("%w: coupon %s", ErrNotFound, code)
	}
	return c, err
}

func (r *Repo) GetOrder(ctx context.Context, id string) (Order, error) {
	return getOrder(ctx, r.DB, id, "")
}

func (r *Repo) FindOrderByKey(ctx context.Context, customerID, key string) (Order, error) {
	return findOrder(ctx, r.DB, selectOrder+byKey, "", customerID, key)
}

// nilOrText: string kosong disimpan sebagai NULL (unique index tidak berlaku untuk NULL)
func nilOrText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// InsertOrder menulis order + items dalam satu transaksi.
// Idempotent via UNIQUE(customer_id, idempotency_key):
// kalau key sudah dipakai -> return order yang ada (existed=true), tidak ada yang ditulis.
func (r *Repo) InsertOrder(ctx context.Context, o Order) (Order, bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		INSERT INTO orders(id, customer_id, status, subtotal, discount, total, coupon_code,
		                   delivery, payment_ref, notes, stock_applied, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6::text::numeric, $7,
		        $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (customer_id, idempotency_key) DO NOTHING`,
		o.ID, o.CustomerID, string(o.Status), o.Subtotal.String(), o.Discount.String(), o.Total.String(), nilOrText(o.CouponCode),
		o.Delivery, o.PaymentRef, o.Notes, o.StockApplied, nilOrText(o.IdemKey), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return Order{}, false, err
	}
	if ct.RowsAffected() == 0 {
		// transaksi lain sudah commit dengan key yang sama
		prev, err := findOrder(ctx, tx, selectOrder+byKey, "", o.CustomerID, o.IdemKey)
		if err != nil {
			return Order{}, false, err
		}
		return prev, true, nil
	}

	for i, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, line_no, product_id, qty, unit_price)
			VALUES ($1, $2, $3, $4, $5::text::numeric)`,
			o.ID, i+1, it.ProductID, it.Qty, it.UnitPrice.String(),
		)
		if err != nil {
			return Order{}, false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, false, err
	}
	return o, false, nil
}

// InTx: fn dijalankan dalam satu transaksi; error apapun -> rollback semuanya.
func (r *Repo) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &repoTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func loadProducts(ctx context.Context, q querier, ids []string, lock string) ([]Product, error) {
	rows, err := q.Query(ctx, selectProducts+lock, ids)
	if err != nil {
		return nil, err
	}
	var out []Product
	idx := map[string]int{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock); err != nil {
			rows.Close()
			return nil, err
		}
		idx[p.ID] = len(out)
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	rows, err = q.Query(ctx, selectRecipes, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var pid string
		var l RecipeLine
		if err := rows.Scan(&pid, &l.IngredientID, &l.QtyRequired); err != nil {
			return nil, err
		}
		if i, ok := idx[pid]; ok {
			out[i].Recipe = append(out[i].Recipe, l)
		}
	}
	return out, rows.Err()
}

func loadIngredients(ctx context.Context, q querier, ids []string, lock string) ([]Ingredient, error) {
	rows, err := q.Query(ctx, selectIngredients+lock, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ingredient
	for rows.Next() {
		var in Ingredient
		if err := rows.Scan(&in.ID, &in.Name, &in.Stock, &in.Unlimited, &in.Unit, &in.ReorderLevel); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func getOrder(ctx context.Context, q querier, id, lock string) (Order, error) {
	return findOrder(ctx, q, selectOrder+byID, lock, id)
}

func findOrder(ctx context.Context, q querier, query, lock string, args ...any) (Order, error) {
	var o Order
	var status string
	err := q.QueryRow(ctx, query+lock, args...).Scan(
		&o.ID, &o.CustomerID, &status, &o.Subtotal, &o.Discount, &o.Total,
		&o.CouponCode, &o.Delivery, &o.PaymentRef, &o.Notes, &o.StockApplied,
		&o.IdemKey, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: order %v", ErrNotFound, args)
	}
	if err != nil {
		return Order{}, err
	}
	o.Status = Status(status)

	rows, err := q.Query(ctx, selectOrderItems, o.ID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ProductID, &it.Qty, &it.UnitPrice); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}
