package redisx

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type LowStockEntry struct {
	IngredientID string  `json:"ingredient_id"`
	Stock        float64 `json:"stock"`
}

// LowStockBoard keeps the ingredients that fell to or under their reorder
// level. Scores are only for display ordering.
type LowStockBoard struct {
	RDB redis.Cmdable
}

func (b *LowStockBoard) Mark(ctx context.Context, ingredientID string, stock float64) error {
	return b.RDB.ZAdd(ctx, KeyLowStock, redis.Z{Score: stock, Member: ingredientID}).Err()
}

func (b *LowStockBoard) Clear(ctx context.Context, ingredientID string) error {
	return b.RDB.ZRem(ctx, KeyLowStock, ingredientID).Err()
}

// List: urut dari stok paling sedikit.
func (b *LowStockBoard) List(ctx context.Context) ([]LowStockEntry, error) {
	zs, err := b.RDB.ZRangeWithScores(ctx, KeyLowStock, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]LowStockEntry, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		out = append(out, LowStockEntry{IngredientID: id, Stock: z.Score})
	}
	return out, nil
}
