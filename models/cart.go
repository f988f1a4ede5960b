package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the slice of catalog data a cart line needs.
type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Stock     int             `json:"stock"`
}

// Variant is the size/color selection of a cart line.
type Variant struct {
	Size  string `json:"size,omitempty"`
	Color string `json:"color,omitempty"`
}

type CartItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
	Variant  Variant `json:"variant"`
}

// LineTotal is unit price times quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Product.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SameLine reports whether two items refer to the same product and variant.
func (i CartItem) SameLine(productID string, v Variant) bool {
	return i.Product.ID == productID && i.Variant == v
}

type Cart struct {
	UserID     string     `json:"user_id"`
	Items      []CartItem `json:"items"`
	CouponCode string     `json:"coupon_code,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ItemCount is the sum of quantities across lines.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// CloneItems copies items into a new backing array. Decimal values are
// immutable, so the copy shares nothing mutable with the source.
func CloneItems(items []CartItem) []CartItem {
	if items == nil {
		return nil
	}
	out := make([]CartItem, len(items))
	copy(out, items)
	return out
}

// CartTotals is always derived from cart contents; it is never stored.
type CartTotals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Shipping   decimal.Decimal `json:"shipping"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
	CouponCode string          `json:"coupon_code,omitempty"`
}

// AddItemRequest is the payload for adding a product to the cart.
type AddItemRequest struct {
	Product  Product `json:"product" binding:"required"`
	Quantity int     `json:"quantity" binding:"required,min=1"`
	Variant  Variant `json:"variant"`
}

// UpdateItemRequest sets a line's quantity; zero or less removes it.
type UpdateItemRequest struct {
	ProductID string  `json:"product_id" binding:"required"`
	Quantity  int     `json:"quantity"`
	Variant   Variant `json:"variant"`
}

// ApplyCouponRequest is the payload for applying a coupon to the cart.
type ApplyCouponRequest struct {
	Code string `json:"code" binding:"required"`
}

// ApplyCouponResponse reports the discount the coupon yields for the current cart.
type ApplyCouponResponse struct {
	Code     string          `json:"code"`
	Type     CouponType      `json:"type"`
	Discount decimal.Decimal `json:"discount"`
	Totals   CartTotals      `json:"totals"`
}
