package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is a lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var statusDescriptions = map[OrderStatus]string{
	OrderStatusPending:    "Order received",
	OrderStatusProcessing: "Order is being prepared",
	OrderStatusShipped:    "Order shipped",
	OrderStatusDelivered:  "Order delivered",
	OrderStatusCancelled:  "Order cancelled",
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	_, ok := statusDescriptions[s]
	return ok
}

// Terminal reports whether no further forward transition exists.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Description is the default human text for a transition into s.
func (s OrderStatus) Description() string {
	return statusDescriptions[s]
}

// Customer is the checkout form data.
type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name" validate:"required,min=2"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone,omitempty" validate:"omitempty,min=8,max=20"`
	Address string `json:"address" validate:"required"`
	City    string `json:"city" validate:"required"`
	ZipCode string `json:"zip_code" validate:"required"`
}

// StatusChange is one entry of an order's status history.
type StatusChange struct {
	Status      OrderStatus `json:"status"`
	Timestamp   time.Time   `json:"timestamp"`
	Description string      `json:"description"`
}

type Order struct {
	ID                uuid.UUID      `json:"id"`
	Customer          Customer       `json:"customer"`
	Items             []CartItem     `json:"items"`
	Totals            CartTotals     `json:"totals"`
	Status            OrderStatus    `json:"status"`
	StatusHistory     []StatusChange `json:"status_history"`
	TrackingCode      string         `json:"tracking_code"`
	EstimatedDelivery time.Time      `json:"estimated_delivery"`
	RiskScore         int            `json:"risk_score"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Clone returns a copy that shares no slices with o.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = CloneItems(o.Items)
	c.StatusHistory = append([]StatusChange(nil), o.StatusHistory...)
	return &c
}

// OrderAttempt is what the risk gate scores and what an order is built from.
type OrderAttempt struct {
	Customer Customer   `json:"customer"`
	Items    []CartItem `json:"items"`
	Totals   CartTotals `json:"totals"`
}

// CheckoutRequest is the payload submitted at checkout.
type CheckoutRequest struct {
	Customer Customer `json:"customer"`
}

// UpdateStatusRequest is the payload for moving an order to a new status.
type UpdateStatusRequest struct {
	Status      OrderStatus `json:"status" binding:"required"`
	Description string      `json:"description"`
}
