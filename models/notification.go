package models

import "time"

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelSim   = "simulated"

	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Event and notification types flowing through the checkout pipeline.
const (
	EventOrderPlaced         = "order_placed"
	EventOrderRejected       = "order_rejected"
	EventOrderStatusChanged  = "order_status_changed"
	EventCouponApplied       = "coupon_applied"
	EventLowStock            = "low_stock"
	EventCheckoutFailed      = "checkout_failed"
	NotificationDismissed    = "notification_dismissed"
	NotificationSuccess      = "success"
	NotificationError        = "error"
	NotificationWarning      = "warning"
	NotificationInfo         = "info"
	NotificationWildcardType = "*"
)

// DeliveryLog records one outbound email/SMS attempt.
type DeliveryLog struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID   string    `json:"order_id" gorm:"type:varchar(64);index"`
	Recipient string    `json:"recipient" gorm:"type:varchar(256)"`
	Type      string    `json:"type" gorm:"type:varchar(64)"`
	Channel   string    `json:"channel" gorm:"type:varchar(20)"`
	Status    string    `json:"status" gorm:"type:varchar(20)"`
	MessageID string    `json:"message_id,omitempty" gorm:"type:varchar(128)"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// DeliveryFilter narrows delivery log queries.
type DeliveryFilter struct {
	OrderID  string
	Channel  string
	Status   string
	Page     int
	PageSize int
}

// OrderPlacedPayload is the payload of order_placed events.
type OrderPlacedPayload struct {
	Order *Order `json:"order"`
}

// OrderRejectedPayload is the payload of order_rejected events.
type OrderRejectedPayload struct {
	Customer  Customer   `json:"customer"`
	Totals    CartTotals `json:"totals"`
	RiskScore int        `json:"risk_score"`
}

// StatusChangedPayload is the payload of order_status_changed events.
type StatusChangedPayload struct {
	OrderID        string      `json:"order_id"`
	CustomerID     string      `json:"customer_id"`
	PreviousStatus OrderStatus `json:"previous_status,omitempty"`
	Status         OrderStatus `json:"status"`
	Description    string      `json:"description"`
	TrackingCode   string      `json:"tracking_code"`
	Timestamp      time.Time   `json:"timestamp"`
}
