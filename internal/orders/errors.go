package orders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidCoupon     = errors.New("invalid coupon")
	ErrExpiredCoupon     = errors.New("coupon expired")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid state transition")
)

type Conflict struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// StockConflictError membawa daftar conflict supaya client bisa koreksi qty.
type StockConflictError struct {
	Conflicts []Conflict
}

func (e *StockConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%s requested=%d available=%d", c.ProductID, c.Requested, c.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *StockConflictError) Is(target error) bool { return target == ErrInsufficientStock }

// MissingProductsError: product id yang tidak ada di catalog.
type MissingProductsError struct {
	IDs []string
}

func (e *MissingProductsError) Error() string {
	return "product not found: " + strings.Join(e.IDs, ",")
}

func (e *MissingProductsError) Is(target error) bool { return target == ErrNotFound }

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
