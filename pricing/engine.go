package pricing

import (
	"time"

	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/shopspring/decimal"
)

// Rules holds the shipping policy.
type Rules struct {
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal
}

// DefaultRules: free shipping from 200, otherwise 15.90.
func DefaultRules() Rules {
	return Rules{
		FreeShippingThreshold: decimal.NewFromInt(200),
		ShippingFee:           decimal.RequireFromString("15.90"),
	}
}

type Engine struct {
	rules Rules
}

func NewEngine(rules Rules) *Engine {
	return &Engine{rules: rules}
}

func (e *Engine) Rules() Rules {
	return e.rules
}

// Subtotal is the sum of unit price times quantity.
func Subtotal(items []models.CartItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// Shipping is the fee charged for a subtotal. Empty carts ship nothing.
func (e *Engine) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() || subtotal.GreaterThanOrEqual(e.rules.FreeShippingThreshold) {
		return decimal.Zero
	}
	return e.rules.ShippingFee
}

// Discount is what coupon takes off a cart with the given subtotal and
// shipping. An absent or invalid coupon yields zero.
func (e *Engine) Discount(coupon *models.Coupon, subtotal, shipping decimal.Decimal, now time.Time) decimal.Decimal {
	if !coupon.IsValidAt(now) {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch coupon.Type {
	case models.CouponTypePercentage:
		discount = subtotal.Mul(coupon.Value).Div(decimal.NewFromInt(100)).Round(2)
	case models.CouponTypeFixed:
		discount = decimal.Min(coupon.Value, subtotal.Add(shipping))
	case models.CouponTypeFreeShipping:
		discount = shipping
	default:
		return decimal.Zero
	}

	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount
}

// ComputeTotals prices items with an optional coupon. It never fails; an
// invalid coupon degrades to no discount and no coupon code in the result.
func (e *Engine) ComputeTotals(items []models.CartItem, coupon *models.Coupon, now time.Time) models.CartTotals {
	subtotal := Subtotal(items)
	shipping := e.Shipping(subtotal)
	discount := e.Discount(coupon, subtotal, shipping, now)

	total := subtotal.Add(shipping).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	totals := models.CartTotals{
		Subtotal: subtotal,
		Shipping: shipping,
		Discount: discount,
		Total:    total,
	}
	if coupon.IsValidAt(now) {
		totals.CouponCode = coupon.Code
	}
	return totals
}
