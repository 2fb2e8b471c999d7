package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/ariefcatur/go-bakery-orders/internal/kafka"
	"github.com/ariefcatur/go-bakery-orders/internal/orders"
	"github.com/ariefcatur/go-bakery-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Topics yang didengar stockwatch: hanya event yang menggerakkan stok bahan.
var Topics = []string{orders.TopicPaymentConfirmed, orders.TopicOrderDeleted}

type LevelReader interface {
	LoadIngredients(ctx context.Context, ids []string) ([]orders.Ingredient, error)
}

type Board interface {
	Mark(ctx context.Context, ingredientID string, stock float64) error
	Clear(ctx context.Context, ingredientID string) error
}

// Service keeps the low-stock board in line with ingredient levels after
// every confirmation or deletion.
type Service struct {
	Catalog     LevelReader
	Redis       redis.Cmdable // dedup; boleh nil
	Board       Board
	ServiceName string
}

// HandleEvent: dipasang sebagai handler consumer.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// 2) ambil bahan yang tersentuh
	var ids []string
	switch env.EventType {
	case orders.EventPaymentConfirmed:
		p, err := kafkax.UnwrapPayload[orders.PaymentConfirmedPayload](env.Payload)
		if err != nil {
			return err
		}
		ids = orders.IngredientIDs(p.Movements)
	case orders.EventOrderDeleted:
		p, err := kafkax.UnwrapPayload[orders.OrderDeletedPayload](env.Payload)
		if err != nil {
			return err
		}
		ids = orders.IngredientIDs(p.Reversed)
	default:
		return nil // ignore
	}

	// 3) dedup via Redis (pakai event_id)
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if s.Redis != nil {
		if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
			return nil
		}
	}

	if err := s.Refresh(ctx, ids); err != nil {
		return err
	}
	if s.Redis != nil {
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}
	return nil
}

// Refresh re-reads the given ingredients and marks or clears them on the board.
func (s *Service) Refresh(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	levels, err := s.Catalog.LoadIngredients(ctx, ids)
	if err != nil {
		return fmt.Errorf("load ingredients: %w", err)
	}
	for _, in := range levels {
		if !in.Unlimited && in.Stock.LessThanOrEqual(in.ReorderLevel) {
			if err := s.Board.Mark(ctx, in.ID, in.Stock.InexactFloat64()); err != nil {
				return err
			}
			zap.L().Warn("ingredient low",
				zap.String("ingredient_id", in.ID),
				zap.String("stock", in.Stock.String()),
				zap.String("reorder_level", in.ReorderLevel.String()),
				zap.String("unit", in.Unit),
			)
			continue
		}
		if err := s.Board.Clear(ctx, in.ID); err != nil {
			return err
		}
	}
	return nil
}
