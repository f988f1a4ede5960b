package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	apperrors "github.com/claudioc0/ecommerce0-sub001/common/errors"
	"github.com/claudioc0/ecommerce0-sub001/eventbus"
	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/claudioc0/ecommerce0-sub001/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	minDeliveryBusinessDays = 3
	maxDeliveryBusinessDays = 10
)

// EventPublisher is the slice of the event bus services publish through.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any, opts eventbus.PublishOptions) []eventbus.DispatchResult
}

// OrderLifecycle owns order creation and status transitions.
type OrderLifecycle interface {
	Create(ctx context.Context, attempt models.OrderAttempt, riskScore int) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus, description string) (*models.Order, error)
	Cancel(ctx context.Context, orderID, reason string) (*models.Order, error)
	Get(ctx context.Context, orderID string) (*models.Order, error)
	List(ctx context.Context) ([]models.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]models.Order, error)
}

type orderLifecycleImpl struct {
	repo   repository.OrderRepository
	events EventPublisher
	logger *zap.Logger
	now    func() time.Time

	// mu serializes read-modify-write cycles on orders and guards rng.
	mu  sync.Mutex
	rng *rand.Rand
}

type LifecycleOption func(*orderLifecycleImpl)

// WithRandSource makes tracking codes and delivery estimates reproducible.
func WithRandSource(src rand.Source) LifecycleOption {
	return func(l *orderLifecycleImpl) { l.rng = rand.New(src) }
}

func WithLifecycleClock(now func() time.Time) LifecycleOption {
	return func(l *orderLifecycleImpl) { l.now = now }
}

// NewOrderLifecycle creates a new OrderLifecycle. events may be nil.
func NewOrderLifecycle(repo repository.OrderRepository, events EventPublisher, logger *zap.Logger, opts ...LifecycleOption) OrderLifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &orderLifecycleImpl{
		repo:   repo,
		events: events,
		logger: logger,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create builds a pending order from an accepted attempt. Items and totals
// are copied so later cart edits never reach the order.
func (l *orderLifecycleImpl) Create(ctx context.Context, attempt models.OrderAttempt, riskScore int) (*models.Order, error) {
	if len(attempt.Items) == 0 {
		return nil, apperrors.ErrEmptyCart
	}

	now := l.now()

	l.mu.Lock()
	tracking := l.trackingCodeLocked()
	eta := addBusinessDays(now, minDeliveryBusinessDays+l.rng.Intn(maxDeliveryBusinessDays-minDeliveryBusinessDays+1))
	l.mu.Unlock()

	order := &models.Order{
		ID:       uuid.New(),
		Customer: attempt.Customer,
		Items:    models.CloneItems(attempt.Items),
		Totals:   attempt.Totals,
		Status:   models.OrderStatusPending,
		StatusHistory: []models.StatusChange{{
			Status:      models.OrderStatusPending,
			Timestamp:   now,
			Description: models.OrderStatusPending.Description(),
		}},
		TrackingCode:      tracking,
		EstimatedDelivery: eta,
		RiskScore:         riskScore,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	l.persist(ctx, order)

	l.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("customer_id", order.Customer.ID),
		zap.String("tracking_code", tracking),
		zap.String("total", order.Totals.Total.StringFixed(2)),
	)

	l.publish(ctx, order, "")
	return order.Clone(), nil
}

// UpdateStatus moves an order to status and appends a history entry. Any
// known status is accepted from any other.
func (l *orderLifecycleImpl) UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus, description string) (*models.Order, error) {
	if !status.Valid() {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidStatus, "unknown status %q", status)
	}

	l.mu.Lock()
	order, err := l.find(ctx, orderID)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}

	previous := order.Status
	if description == "" {
		description = status.Description()
	}
	now := l.now()
	order.Status = status
	order.UpdatedAt = now
	order.StatusHistory = append(order.StatusHistory, models.StatusChange{
		Status:      status,
		Timestamp:   now,
		Description: description,
	})
	l.persist(ctx, order)
	l.mu.Unlock()

	l.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("from", string(previous)),
		zap.String("to", string(status)),
	)

	l.publish(ctx, order, previous)
	return order.Clone(), nil
}

// Cancel is UpdateStatus to cancelled with reason as the history text.
func (l *orderLifecycleImpl) Cancel(ctx context.Context, orderID, reason string) (*models.Order, error) {
	return l.UpdateStatus(ctx, orderID, models.OrderStatusCancelled, reason)
}

func (l *orderLifecycleImpl) Get(ctx context.Context, orderID string) (*models.Order, error) {
	return l.find(ctx, orderID)
}

// List returns every order, newest first.
func (l *orderLifecycleImpl) List(ctx context.Context) ([]models.Order, error) {
	orders, err := l.repo.FindAll(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageFailure, err)
	}
	return orders, nil
}

func (l *orderLifecycleImpl) ListByCustomer(ctx context.Context, customerID string) ([]models.Order, error) {
	orders, err := l.repo.FindByCustomer(ctx, customerID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageFailure, err)
	}
	return orders, nil
}

func (l *orderLifecycleImpl) find(ctx context.Context, orderID string) (*models.Order, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrOrderNotFound, "order %s", orderID)
	}
	order, err := l.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, apperrors.Wrapf(apperrors.ErrOrderNotFound, "order %s", orderID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageFailure, err)
	}
	return order, nil
}

// persist writes through the repository. A storage failure is logged and
// does not undo the transition.
func (l *orderLifecycleImpl) persist(ctx context.Context, order *models.Order) {
	if err := l.repo.Save(ctx, order); err != nil {
		l.logger.Error("Failed to persist order",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
}

func (l *orderLifecycleImpl) publish(ctx context.Context, order *models.Order, previous models.OrderStatus) {
	if l.events == nil {
		return
	}
	last := order.StatusHistory[len(order.StatusHistory)-1]
	l.events.Publish(ctx, models.EventOrderStatusChanged, models.StatusChangedPayload{
		OrderID:        order.ID.String(),
		CustomerID:     order.Customer.ID,
		PreviousStatus: previous,
		Status:         order.Status,
		Description:    last.Description,
		TrackingCode:   order.TrackingCode,
		Timestamp:      last.Timestamp,
	}, eventbus.PublishOptions{})
}

// trackingCodeLocked returns two letters, nine digits and the BR suffix.
func (l *orderLifecycleImpl) trackingCodeLocked() string {
	var b strings.Builder
	b.Grow(13)
	for i := 0; i < 2; i++ {
		b.WriteByte(byte('A' + l.rng.Intn(26)))
	}
	fmt.Fprintf(&b, "%09d", l.rng.Intn(1_000_000_000))
	b.WriteString("BR")
	return b.String()
}

// addBusinessDays moves n weekdays forward from t.
func addBusinessDays(t time.Time, n int) time.Time {
	for n > 0 {
		t = t.AddDate(0, 0, 1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n--
		}
	}
	return t
}
