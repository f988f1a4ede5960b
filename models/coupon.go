package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CouponType represents the type of discount a coupon provides.
type CouponType string

const (
	CouponTypePercentage   CouponType = "percentage"
	CouponTypeFixed        CouponType = "fixed"
	CouponTypeFreeShipping CouponType = "free_shipping"
)

// Coupon is a discount code gated by expiry and usage cap.
type Coupon struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code       string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Type       CouponType      `gorm:"type:varchar(20);not null" json:"type"`
	Value      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"value"` // percentage or currency amount
	ExpiresAt  time.Time       `gorm:"not null" json:"expires_at"`
	UsageLimit int             `gorm:"not null;default:0" json:"usage_limit"`
	UsedCount  int             `gorm:"not null;default:0" json:"used_count"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt  `gorm:"index" json:"-"`
}

// IsValidAt reports whether the coupon can be used at now.
func (c *Coupon) IsValidAt(now time.Time) bool {
	if c == nil {
		return false
	}
	return !now.After(c.ExpiresAt) && c.UsedCount < c.UsageLimit
}

// InvalidReason explains why a coupon cannot be used at now, or "".
func (c *Coupon) InvalidReason(now time.Time) string {
	switch {
	case c == nil:
		return "Coupon not found"
	case now.After(c.ExpiresAt):
		return "Coupon has expired"
	case c.UsedCount >= c.UsageLimit:
		return "Coupon usage limit reached"
	}
	return ""
}

// NormalizeCouponCode is the catalog key for a code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateCouponRequest is the payload for adding a coupon to the catalog.
type CreateCouponRequest struct {
	Code       string          `json:"code" binding:"required,min=3,max=64"`
	Type       CouponType      `json:"type" binding:"required,oneof=percentage fixed free_shipping"`
	Value      decimal.Decimal `json:"value"`
	UsageLimit int             `json:"usage_limit" binding:"gte=1"`
	ExpiresAt  time.Time       `json:"expires_at" binding:"required"`
}
