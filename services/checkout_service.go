package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/claudioc0/ecommerce0-sub001/common/errors"
	"github.com/claudioc0/ecommerce0-sub001/common/logger"
	"github.com/claudioc0/ecommerce0-sub001/eventbus"
	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/claudioc0/ecommerce0-sub001/notifications"
	"github.com/claudioc0/ecommerce0-sub001/pricing"
	"github.com/claudioc0/ecommerce0-sub001/repository"
	"github.com/claudioc0/ecommerce0-sub001/risk"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type CheckoutStatus string

const (
	CheckoutPlaced   CheckoutStatus = "placed"
	CheckoutRejected CheckoutStatus = "rejected"
)

// CheckoutResult is the outcome of a checkout that reached the risk gate.
// A rejection is a result, not an error.
type CheckoutResult struct {
	Status        CheckoutStatus            `json:"status"`
	Order         *models.Order             `json:"order,omitempty"`
	RiskScore     int                       `json:"risk_score"`
	Totals        models.CartTotals         `json:"totals"`
	CouponIgnored bool                      `json:"coupon_ignored,omitempty"`
	Dispatch      []eventbus.DispatchResult `json:"dispatch,omitempty"`
}

// Notifier is the slice of the notification center checkout posts to.
type Notifier interface {
	Post(typ string, data map[string]any, opts notifications.PostOptions) string
}

type CheckoutService interface {
	Checkout(ctx context.Context, customerID string, req models.CheckoutRequest) (*CheckoutResult, error)
}

type checkoutServiceImpl struct {
	carts          CartService
	coupons        repository.CouponRepository
	engine         *pricing.Engine
	analyzer       risk.Analyzer
	lifecycle      OrderLifecycle
	events         EventPublisher
	notifier       Notifier
	validate       *validator.Validate
	tracer         trace.Tracer
	publishTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

type CheckoutDeps struct {
	Carts     CartService
	Coupons   repository.CouponRepository
	Engine    *pricing.Engine
	Analyzer  risk.Analyzer
	Lifecycle OrderLifecycle
	Events    EventPublisher
	Notifier  Notifier
	// PublishTimeout bounds each order_placed listener; zero uses the bus default.
	PublishTimeout time.Duration
	Now            func() time.Time
	Logger         *zap.Logger
}

// NewCheckoutService creates a new CheckoutService.
func NewCheckoutService(deps CheckoutDeps) CheckoutService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &checkoutServiceImpl{
		carts:          deps.Carts,
		coupons:        deps.Coupons,
		engine:         deps.Engine,
		analyzer:       deps.Analyzer,
		lifecycle:      deps.Lifecycle,
		events:         deps.Events,
		notifier:       deps.Notifier,
		validate:       validator.New(),
		tracer:         otel.Tracer("checkout"),
		publishTimeout: deps.PublishTimeout,
		now:            deps.Now,
		logger:         logger.OrNop(deps.Logger),
	}
}

// Checkout turns the customer's cart into an order. Validation and storage
// problems and an unavailable risk analyzer are errors that leave the cart
// untouched. A risky attempt returns a rejected result and no order.
func (s *checkoutServiceImpl) Checkout(ctx context.Context, customerID string, req models.CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkout", trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()
	log := logger.For(ctx, s.logger).With(zap.String("customer_id", customerID))

	customer := req.Customer
	customer.ID = customerID
	if err := s.validateCustomer(customer); err != nil {
		span.SetStatus(codes.Error, "validation")
		return nil, err
	}

	cart, err := s.carts.Get(ctx, customerID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(cart.Items) == 0 {
		span.SetStatus(codes.Error, "empty cart")
		return nil, apperrors.ErrEmptyCart
	}

	coupon, err := lookupCoupon(ctx, s.coupons, cart.CouponCode)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	now := s.now()
	totals := s.engine.ComputeTotals(cart.Items, coupon, now)
	couponIgnored := cart.CouponCode != "" && totals.CouponCode == ""
	if couponIgnored {
		log.Info("Stored coupon no longer applies", zap.String("code", cart.CouponCode))
	}
	span.SetAttributes(
		attribute.String("cart.total", totals.Total.StringFixed(2)),
		attribute.Int("cart.items", cart.ItemCount()),
	)

	attempt := models.OrderAttempt{
		Customer: customer,
		Items:    models.CloneItems(cart.Items),
		Totals:   totals,
	}

	score, err := s.analyze(ctx, attempt)
	if err != nil {
		log.Error("Risk analysis failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "risk unavailable")
		s.publish(ctx, models.EventCheckoutFailed, map[string]any{
			"customer_id": customerID,
			"reason":      err.Error(),
		}, eventbus.PublishOptions{})
		return nil, apperrors.Wrap(apperrors.ErrRiskUnavailable, err)
	}
	span.SetAttributes(attribute.Int("risk.score", score))

	result := &CheckoutResult{
		RiskScore:     score,
		Totals:        totals,
		CouponIgnored: couponIgnored,
	}

	if !risk.IsAcceptable(score) {
		log.Warn("Checkout rejected by risk gate", zap.Int("risk_score", score))
		if s.notifier != nil {
			s.notifier.Post(models.EventOrderRejected, map[string]any{
				"customer_id": customerID,
				"risk_score":  score,
				"total":       totals.Total.StringFixed(2),
			}, notifications.PostOptions{
				Recipient: customerID,
				Title:     "Order not approved",
				Message:   "We could not approve this order. Please review your details or contact support.",
				Priority:  notifications.PriorityHigh,
			})
		}
		result.Status = CheckoutRejected
		result.Dispatch = s.publish(ctx, models.EventOrderRejected, models.OrderRejectedPayload{
			Customer:  customer,
			Totals:    totals,
			RiskScore: score,
		}, eventbus.PublishOptions{})
		return result, nil
	}

	order, err := s.createOrder(ctx, attempt, score)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	log = log.With(zap.String("order_id", order.ID.String()))

	// The order exists from here on. Coupon usage, the order_placed fan-out
	// and clearing the cart must finish even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	if totals.CouponCode != "" {
		if err := s.coupons.IncrementUsedCount(ctx, totals.CouponCode); err != nil {
			log.Warn("Failed to record coupon usage", zap.String("code", totals.CouponCode), zap.Error(err))
		}
	}

	result.Status = CheckoutPlaced
	result.Order = order
	result.Dispatch = s.publish(ctx, models.EventOrderPlaced, models.OrderPlacedPayload{Order: order},
		eventbus.PublishOptions{Async: true, Timeout: s.publishTimeout})

	if err := s.carts.Clear(ctx, customerID); err != nil {
		log.Error("Failed to clear cart after checkout", zap.Error(err))
	}

	log.Info("Checkout completed",
		zap.Int("risk_score", score),
		zap.String("total", totals.Total.StringFixed(2)),
		zap.Int("listeners", len(result.Dispatch)),
	)
	return result, nil
}

func (s *checkoutServiceImpl) validateCustomer(c models.Customer) error {
	err := s.validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Wrap(apperrors.ErrValidation, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return apperrors.Wrapf(apperrors.ErrValidation, "invalid customer fields: %s", strings.Join(fields, ", "))
}

func (s *checkoutServiceImpl) analyze(ctx context.Context, attempt models.OrderAttempt) (int, error) {
	ctx, span := s.tracer.Start(ctx, "risk.analyze")
	defer span.End()

	score, err := s.analyzer.Analyze(ctx, attempt)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return risk.Clamp(score), nil
}

func (s *checkoutServiceImpl) createOrder(ctx context.Context, attempt models.OrderAttempt, score int) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.create")
	defer span.End()

	order, err := s.lifecycle.Create(ctx, attempt, score)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID.String()))
	return order, nil
}

func (s *checkoutServiceImpl) publish(ctx context.Context, eventType string, payload any, opts eventbus.PublishOptions) []eventbus.DispatchResult {
	if s.events == nil {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "publish "+eventType)
	defer span.End()
	return s.events.Publish(ctx, eventType, payload, opts)
}
