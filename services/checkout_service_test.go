package services

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	apperrors "github.com/claudioc0/ecommerce0-sub001/common/errors"
	"github.com/claudioc0/ecommerce0-sub001/eventbus"
	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/claudioc0/ecommerce0-sub001/notifications"
	"github.com/claudioc0/ecommerce0-sub001/pkg/kvstore"
	"github.com/claudioc0/ecommerce0-sub001/pricing"
	"github.com/claudioc0/ecommerce0-sub001/repository"
	"github.com/claudioc0/ecommerce0-sub001/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type checkoutFixture struct {
	svc       CheckoutService
	carts     CartService
	coupons   *repository.StaticCouponRepository
	orders    repository.OrderRepository
	bus       *eventbus.Bus
	center    *notifications.Center
	analyzer  *stubAnalyzer
	lifecycle OrderLifecycle
}

type stubAnalyzer struct {
	score int
	err   error
	calls int
	seen  models.OrderAttempt
	// during runs while the score is being computed.
	during func()
}

func (s *stubAnalyzer) Analyze(_ context.Context, attempt models.OrderAttempt) (int, error) {
	s.calls++
	s.seen = attempt
	if s.during != nil {
		s.during()
	}
	return s.score, s.err
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	store := kvstore.NewMemoryStore("test")
	coupons := seedCoupons()
	engine := pricing.NewEngine(pricing.DefaultRules())
	bus := eventbus.New(nil, eventbus.WithClock(clock))
	center := notifications.New(nil, notifications.WithClock(clock))
	t.Cleanup(center.Close)

	orders := repository.NewKVOrderRepository(store)
	lifecycle := NewOrderLifecycle(orders, bus, nil, WithRandSource(rand.NewSource(7)), WithLifecycleClock(clock))
	carts := NewCartService(store, coupons, engine, clock, nil)
	analyzer := &stubAnalyzer{score: 10}

	svc := NewCheckoutService(CheckoutDeps{
		Carts:          carts,
		Coupons:        coupons,
		Engine:         engine,
		Analyzer:       analyzer,
		Lifecycle:      lifecycle,
		Events:         bus,
		Notifier:       center,
		PublishTimeout: time.Second,
		Now:            clock,
	})
	return &checkoutFixture{
		svc: svc, carts: carts, coupons: coupons, orders: orders,
		bus: bus, center: center, analyzer: analyzer, lifecycle: lifecycle,
	}
}

func validCheckout() models.CheckoutRequest {
	return models.CheckoutRequest{Customer: models.Customer{
		Name:    "Ana Souza",
		Email:   "ana@example.com",
		Phone:   "+5511987654321",
		Address: "Rua A, 10",
		City:    "São Paulo",
		ZipCode: "01000-000",
	}}
}

func (f *checkoutFixture) fillCart(t *testing.T, userID string) {
	t.Helper()
	_, err := f.carts.AddItem(context.Background(), userID, models.AddItemRequest{Product: product("p1", "125", 0), Quantity: 2})
	require.NoError(t, err)
}

func TestCheckout_Placed(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.fillCart(t, "u1")
	_, err := f.carts.ApplyCoupon(ctx, "u1", "SAVE10")
	require.NoError(t, err)

	var placed []*models.Order
	f.bus.Subscribe(models.EventOrderPlaced, func(_ context.Context, e eventbus.Event) (any, error) {
		placed = append(placed, e.Payload.(models.OrderPlacedPayload).Order)
		return "ok", nil
	}, eventbus.SubscribeOptions{})

	res, err := f.svc.Checkout(ctx, "u1", validCheckout())
	require.NoError(t, err)

	assert.Equal(t, CheckoutPlaced, res.Status)
	require.NotNil(t, res.Order)
	assert.Equal(t, models.OrderStatusPending, res.Order.Status)
	assert.Equal(t, "u1", res.Order.Customer.ID)
	assert.True(t, dec("225").Equal(res.Totals.Total))
	assert.False(t, res.CouponIgnored)
	assert.Equal(t, 10, res.RiskScore)

	require.Len(t, res.Dispatch, 1)
	assert.True(t, res.Dispatch[0].Success)
	require.Len(t, placed, 1)
	assert.Equal(t, res.Order.ID, placed[0].ID)

	cart, err := f.carts.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Empty(t, cart.CouponCode)

	coupon, _ := f.coupons.FindByCode(ctx, "SAVE10")
	assert.Equal(t, 1, coupon.UsedCount)

	stored, err := f.orders.FindByID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Order.TrackingCode, stored.TrackingCode)
}

func TestCheckout_CallerGoneAfterRiskStillFinishes(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t, "u1")
	_, err := f.carts.ApplyCoupon(context.Background(), "u1", "SAVE10")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.analyzer.during = cancel

	f.bus.Subscribe(models.EventOrderPlaced, func(ctx context.Context, _ eventbus.Event) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return "sent", nil
	}, eventbus.SubscribeOptions{})

	res, err := f.svc.Checkout(ctx, "u1", validCheckout())
	require.NoError(t, err)
	require.Equal(t, CheckoutPlaced, res.Status)
	require.Error(t, ctx.Err())

	require.Len(t, res.Dispatch, 1)
	assert.True(t, res.Dispatch[0].Success, res.Dispatch[0].Error)
	assert.Equal(t, "sent", res.Dispatch[0].Value)

	cart, err := f.carts.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	coupon, _ := f.coupons.FindByCode(context.Background(), "SAVE10")
	assert.Equal(t, 1, coupon.UsedCount)
}

func TestCheckout_ValidationFailureLeavesCartUntouched(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t, "u1")

	req := validCheckout()
	req.Customer.Email = "not-an-email"
	req.Customer.City = ""

	_, err := f.svc.Checkout(context.Background(), "u1", req)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Contains(t, err.Error(), "email")
	assert.Contains(t, err.Error(), "city")
	assert.Zero(t, f.analyzer.calls)

	cart, _ := f.carts.Get(context.Background(), "u1")
	assert.Len(t, cart.Items, 1)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.Checkout(context.Background(), "u1", validCheckout())
	assert.ErrorIs(t, err, apperrors.ErrEmptyCart)
	assert.Zero(t, f.analyzer.calls)
}

func TestCheckout_Rejected(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t, "u1")
	f.analyzer.score = risk.AcceptanceThreshold

	var rejected []models.OrderRejectedPayload
	f.bus.Subscribe(models.EventOrderRejected, func(_ context.Context, e eventbus.Event) (any, error) {
		rejected = append(rejected, e.Payload.(models.OrderRejectedPayload))
		return nil, nil
	}, eventbus.SubscribeOptions{})

	res, err := f.svc.Checkout(context.Background(), "u1", validCheckout())
	require.NoError(t, err)
	assert.Equal(t, CheckoutRejected, res.Status)
	assert.Nil(t, res.Order)
	assert.Equal(t, risk.AcceptanceThreshold, res.RiskScore)

	require.Len(t, rejected, 1)
	assert.Equal(t, "u1", rejected[0].Customer.ID)

	feed := f.center.List(notifications.ListFilter{Type: models.EventOrderRejected})
	require.Len(t, feed, 1)
	assert.Equal(t, "u1", feed[0].Recipient)

	orders, _ := f.lifecycle.List(context.Background())
	assert.Empty(t, orders)
	cart, _ := f.carts.Get(context.Background(), "u1")
	assert.Len(t, cart.Items, 1)
}

func TestCheckout_RiskUnavailable(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t, "u1")
	f.analyzer.err = errors.New("scoring service down")

	var failed int
	f.bus.Subscribe(models.EventCheckoutFailed, func(context.Context, eventbus.Event) (any, error) {
		failed++
		return nil, nil
	}, eventbus.SubscribeOptions{})

	res, err := f.svc.Checkout(context.Background(), "u1", validCheckout())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperrors.ErrRiskUnavailable)
	assert.Equal(t, 1, failed)

	cart, _ := f.carts.Get(context.Background(), "u1")
	assert.Len(t, cart.Items, 1)
	orders, _ := f.lifecycle.List(context.Background())
	assert.Empty(t, orders)
}

func TestCheckout_InvalidStoredCouponIsIgnored(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.fillCart(t, "u1")
	_, err := f.carts.ApplyCoupon(ctx, "u1", "SAVE10")
	require.NoError(t, err)

	// Exhaust the coupon after it was applied to the cart.
	for i := 0; i < 100; i++ {
		require.NoError(t, f.coupons.IncrementUsedCount(ctx, "SAVE10"))
	}

	res, err := f.svc.Checkout(ctx, "u1", validCheckout())
	require.NoError(t, err)
	assert.True(t, res.CouponIgnored)
	assert.True(t, res.Totals.Discount.IsZero())
	assert.True(t, dec("250").Equal(res.Totals.Total))
	assert.True(t, f.analyzer.seen.Totals.Total.Equal(res.Totals.Total))
}

func TestCheckout_ListenerFailureDoesNotFailCheckout(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t, "u1")

	f.bus.Subscribe(models.EventOrderPlaced, func(context.Context, eventbus.Event) (any, error) {
		return nil, errors.New("mailer down")
	}, eventbus.SubscribeOptions{Priority: 5})
	f.bus.Subscribe(models.EventOrderPlaced, func(ctx context.Context, _ eventbus.Event) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, eventbus.SubscribeOptions{Priority: 1})

	res, err := f.svc.Checkout(context.Background(), "u1", validCheckout())
	require.NoError(t, err)
	assert.Equal(t, CheckoutPlaced, res.Status)
	require.Len(t, res.Dispatch, 2)
	assert.False(t, res.Dispatch[0].Success)
	assert.Equal(t, "mailer down", res.Dispatch[0].Error)
	assert.False(t, res.Dispatch[1].Success)
	assert.ErrorIs(t, res.Dispatch[1].Err, eventbus.ErrListenerTimeout)
}

func TestCheckout_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	f := newCheckoutFixture(t)
	f.fillCart(t, "u1")

	_, err := f.svc.Checkout(context.Background(), "u1", validCheckout())
	require.NoError(t, err)

	ended := recorder.Ended()
	names := make([]string, 0, len(ended))
	for _, s := range ended {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"checkout", "risk.analyze", "order.create", "publish order_placed"}, names)

	root := ended[len(ended)-1]
	assert.Equal(t, "checkout", root.Name())
	for _, s := range ended[:len(ended)-1] {
		assert.Equal(t, root.SpanContext().TraceID(), s.SpanContext().TraceID())
		assert.Equal(t, root.SpanContext().SpanID(), s.Parent().SpanID())
	}
}
