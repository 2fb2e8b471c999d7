package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type CouponReader interface {
	GetCoupon(ctx context.Context, code string) (Coupon, error)
}

// Clock dipisah supaya test bisa pakai tanggal tetap.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

var hundred = decimal.NewFromInt(100)

type CouponValidator struct {
	Coupons  CouponReader
	Clock    Clock
	Location *time.Location // zona waktu bisnis, bukan UTC
}

// Apply validates code against the business-local calendar day and returns the
// discount for subtotal. An empty code means no discount.
func (v *CouponValidator) Apply(ctx context.Context, code string, subtotal decimal.Decimal) (decimal.Decimal, *Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return decimal.Zero, nil, nil
	}
	c, err := v.Coupons.GetCoupon(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return decimal.Zero, nil, fmt.Errorf("%w: %s", ErrInvalidCoupon, code)
	}
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("load coupon: %w", err)
	}
	if !c.Active {
		return decimal.Zero, nil, fmt.Errorf("%w: %s", ErrInvalidCoupon, code)
	}
	if c.ExpiresOn != nil && v.today() > dateKey(*c.ExpiresOn) {
		return decimal.Zero, nil, fmt.Errorf("%w: %s", ErrExpiredCoupon, code)
	}
	discount := subtotal.Mul(c.Percent).Div(hundred).Round(2)
	return discount, &c, nil
}

func (v *CouponValidator) today() string {
	loc := v.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := v.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	return dateKey(clock.Now().In(loc))
}

// expiration date disimpan sebagai tanggal; ambil Y-M-D apa adanya tanpa konversi zona
func dateKey(t time.Time) string { return t.Format(time.DateOnly) }
