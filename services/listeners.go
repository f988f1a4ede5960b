package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/claudioc0/ecommerce0-sub001/eventbus"
	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/claudioc0/ecommerce0-sub001/notifications"
	"github.com/claudioc0/ecommerce0-sub001/sender"
	"go.uber.org/zap"
)

// Listener priorities on the checkout events. Higher runs first.
const (
	PriorityLogging   = 100
	PriorityNotify    = 90
	PriorityAnalytics = 80
	PriorityLowStock  = 70
	PriorityEmail     = 50
	PrioritySMS       = 40
	PriorityRelay     = 10
)

// DefaultLowStockThreshold is the remaining stock under which a low_stock
// notification is posted.
const DefaultLowStockThreshold = 5

type Subscriber interface {
	Subscribe(eventType string, h eventbus.Handler, opts eventbus.SubscribeOptions) func()
}

type MessageSender interface {
	Send(ctx context.Context, ch sender.Channel, recipient, message string, opts sender.Options) (sender.Result, error)
}

// Analytics receives checkout counters.
type Analytics interface {
	OrderPlaced(total float64, items int)
	OrderRejected(riskScore int)
	LowStock(productID string)
}

// Relay forwards an event envelope to an external broker.
type Relay interface {
	Name() string
	Forward(ctx context.Context, eventType, key string, body []byte) error
}

// Envelope is the wire form of a relayed event.
type Envelope struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type CheckoutListeners struct {
	Notifier          Notifier
	Analytics         Analytics
	Sender            MessageSender
	Email             sender.Channel
	SMS               sender.Channel
	Relays            []Relay
	LowStockThreshold int
	Logger            *zap.Logger
}

// Register subscribes every configured listener and returns a func that
// removes them all. Nil collaborators are skipped.
func (l *CheckoutListeners) Register(bus Subscriber) func() {
	if l.Logger == nil {
		l.Logger = zap.NewNop()
	}
	if l.LowStockThreshold <= 0 {
		l.LowStockThreshold = DefaultLowStockThreshold
	}

	var unsubs []func()
	on := func(eventType string, priority int, h eventbus.Handler) {
		unsubs = append(unsubs, bus.Subscribe(eventType, h, eventbus.SubscribeOptions{Priority: priority}))
	}

	on(models.EventOrderPlaced, PriorityLogging, l.logOrderPlaced)
	on(models.EventOrderRejected, PriorityLogging, l.logOrderRejected)
	on(models.EventCheckoutFailed, PriorityLogging, l.logCheckoutFailed)

	if l.Notifier != nil {
		on(models.EventOrderPlaced, PriorityNotify, l.notifyOrderPlaced)
		on(models.EventOrderStatusChanged, PriorityNotify, l.notifyStatusChanged)
		on(models.EventOrderPlaced, PriorityLowStock, l.checkLowStock)
	}
	if l.Analytics != nil {
		on(models.EventOrderPlaced, PriorityAnalytics, l.countOrderPlaced)
		on(models.EventOrderRejected, PriorityAnalytics, l.countOrderRejected)
	}
	if l.Sender != nil && l.Email != nil {
		on(models.EventOrderPlaced, PriorityEmail, l.emailConfirmation)
	}
	if l.Sender != nil && l.SMS != nil {
		on(models.EventOrderPlaced, PrioritySMS, l.smsConfirmation)
	}
	if len(l.Relays) > 0 {
		on(models.EventOrderPlaced, PriorityRelay, l.relay)
		on(models.EventOrderStatusChanged, PriorityRelay, l.relay)
	}

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func orderFrom(e eventbus.Event) (*models.Order, error) {
	switch p := e.Payload.(type) {
	case models.OrderPlacedPayload:
		if p.Order != nil {
			return p.Order, nil
		}
	case *models.OrderPlacedPayload:
		if p != nil && p.Order != nil {
			return p.Order, nil
		}
	}
	return nil, fmt.Errorf("event %s: unexpected payload %T", e.Type, e.Payload)
}

func (l *CheckoutListeners) logOrderPlaced(_ context.Context, e eventbus.Event) (any, error) {
	order, err := orderFrom(e)
	if err != nil {
		return nil, err
	}
	l.Logger.Info("Order placed",
		zap.String("event_id", e.ID),
		zap.String("order_id", order.ID.String()),
		zap.String("customer_id", order.Customer.ID),
		zap.String("total", order.Totals.Total.StringFixed(2)),
		zap.Int("risk_score", order.RiskScore),
	)
	return "logged", nil
}

func (l *CheckoutListeners) logOrderRejected(_ context.Context, e eventbus.Event) (any, error) {
	p, ok := e.Payload.(models.OrderRejectedPayload)
	if !ok {
		return nil, fmt.Errorf("event %s: unexpected payload %T", e.Type, e.Payload)
	}
	l.Logger.Warn("Order rejected",
		zap.String("event_id", e.ID),
		zap.String("customer_id", p.Customer.ID),
		zap.Int("risk_score", p.RiskScore),
	)
	return "logged", nil
}

func (l *CheckoutListeners) logCheckoutFailed(_ context.Context, e eventbus.Event) (any, error) {
	l.Logger.Error("Checkout failed", zap.String("event_id", e.ID), zap.Any("payload", e.Payload))
	return "logged", nil
}

func (l *CheckoutListeners) notifyOrderPlaced(_ context.Context, e eventbus.Event) (any, error) {
	order, err := orderFrom(e)
	if err != nil {
		return nil, err
	}
	id := l.Notifier.Post(models.EventOrderPlaced, map[string]any{
		"order_id":      order.ID.String(),
		"tracking_code": order.TrackingCode,
		"total":         order.Totals.Total.StringFixed(2),
	}, notifications.PostOptions{
		Recipient: order.Customer.ID,
		Title:     "Order confirmed",
		Message:   fmt.Sprintf("Order %s confirmed. Tracking code %s.", order.ID, order.TrackingCode),
		Priority:  notifications.PriorityHigh,
		Actions:   []notifications.Action{{Label: "Track order", Action: "track:" + order.ID.String()}},
	})
	return id, nil
}

func (l *CheckoutListeners) notifyStatusChanged(_ context.Context, e eventbus.Event) (any, error) {
	p, ok := e.Payload.(models.StatusChangedPayload)
	if !ok {
		return nil, fmt.Errorf("event %s: unexpected payload %T", e.Type, e.Payload)
	}
	priority := notifications.PriorityNormal
	if p.Status == models.OrderStatusCancelled {
		priority = notifications.PriorityHigh
	}
	id := l.Notifier.Post(models.EventOrderStatusChanged, map[string]any{
		"order_id":        p.OrderID,
		"status":          string(p.Status),
		"previous_status": string(p.PreviousStatus),
	}, notifications.PostOptions{
		Recipient: p.CustomerID,
		Title:     "Order update",
		Message:   p.Description,
		Priority:  priority,
	})
	return id, nil
}

func (l *CheckoutListeners) countOrderPlaced(_ context.Context, e eventbus.Event) (any, error) {
	order, err := orderFrom(e)
	if err != nil {
		return nil, err
	}
	total, _ := order.Totals.Total.Float64()
	count := 0
	for _, it := range order.Items {
		count += it.Quantity
	}
	l.Analytics.OrderPlaced(total, count)
	return count, nil
}

func (l *CheckoutListeners) countOrderRejected(_ context.Context, e eventbus.Event) (any, error) {
	p, ok := e.Payload.(models.OrderRejectedPayload)
	if !ok {
		return nil, fmt.Errorf("event %s: unexpected payload %T", e.Type, e.Payload)
	}
	l.Analytics.OrderRejected(p.RiskScore)
	return p.RiskScore, nil
}

// checkLowStock posts a low_stock warning for every ordered product whose
// tracked stock falls under the threshold once the order is taken.
func (l *CheckoutListeners) checkLowStock(_ context.Context, e eventbus.Event) (any, error) {
	order, err := orderFrom(e)
	if err != nil {
		return nil, err
	}
	var low []string
	for _, it := range order.Items {
		if it.Product.Stock <= 0 {
			continue
		}
		remaining := it.Product.Stock - it.Quantity
		if remaining >= l.LowStockThreshold {
			continue
		}
		if remaining < 0 {
			remaining = 0
		}
		low = append(low, it.Product.ID)
		l.Notifier.Post(models.EventLowStock, map[string]any{
			"product_id": it.Product.ID,
			"remaining":  remaining,
		}, notifications.PostOptions{
			Title:      "Low stock",
			Message:    fmt.Sprintf("%s has %d units left", it.Product.Name, remaining),
			Priority:   notifications.PriorityUrgent,
			Persistent: true,
		})
		if l.Analytics != nil {
			l.Analytics.LowStock(it.Product.ID)
		}
	}
	return low, nil
}

func (l *CheckoutListeners) emailConfirmation(ctx context.Context, e eventbus.Event) (any, error) {
	order, err := orderFrom(e)
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf(
		"Hi %s, your order %s was confirmed. Total: %s. Tracking code: %s. Estimated delivery: %s.",
		order.Customer.Name, order.ID, order.Totals.Total.StringFixed(2),
		order.TrackingCode, order.EstimatedDelivery.Format("2006-01-02"),
	)
	res, err := l.Sender.Send(ctx, l.Email, order.Customer.Email, msg, sender.Options{
		OrderID: order.ID.String(),
		Type:    models.EventOrderPlaced,
		Subject: "Order confirmed!",
	})
	if err != nil {
		return nil, err
	}
	return res.MessageID, nil
}

func (l *CheckoutListeners) smsConfirmation(ctx context.Context, e eventbus.Event) (any, error) {
	order, err := orderFrom(e)
	if err != nil {
		return nil, err
	}
	if order.Customer.Phone == "" {
		return "skipped: no phone", nil
	}
	msg := fmt.Sprintf("Order %s confirmed. Tracking: %s", order.ID.String()[:8], order.TrackingCode)
	res, err := l.Sender.Send(ctx, l.SMS, order.Customer.Phone, msg, sender.Options{
		OrderID: order.ID.String(),
		Type:    models.EventOrderPlaced,
	})
	if err != nil {
		return nil, err
	}
	return res.MessageID, nil
}

// relay forwards the event to every broker. Each relay is attempted; the
// listener fails if any of them failed.
func (l *CheckoutListeners) relay(ctx context.Context, e eventbus.Event) (any, error) {
	body, err := json.Marshal(Envelope{ID: e.ID, Type: e.Type, Timestamp: e.Timestamp, Payload: e.Payload})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	key := relayKey(e)

	var errs []error
	forwarded := 0
	for _, r := range l.Relays {
		if err := r.Forward(ctx, e.Type, key, body); err != nil {
			l.Logger.Error("Failed to relay event",
				zap.String("relay", r.Name()),
				zap.String("event", e.Type),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
			continue
		}
		forwarded++
	}
	return forwarded, errors.Join(errs...)
}

// relayKey partitions broker messages by order so per-order ordering holds.
func relayKey(e eventbus.Event) string {
	switch p := e.Payload.(type) {
	case models.OrderPlacedPayload:
		if p.Order != nil {
			return p.Order.ID.String()
		}
	case models.StatusChangedPayload:
		return p.OrderID
	}
	return e.ID
}
