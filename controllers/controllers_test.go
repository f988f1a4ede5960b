package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/claudioc0/ecommerce0-sub001/controllers"
	"github.com/claudioc0/ecommerce0-sub001/eventbus"
	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/claudioc0/ecommerce0-sub001/notifications"
	"github.com/claudioc0/ecommerce0-sub001/pkg/kvstore"
	"github.com/claudioc0/ecommerce0-sub001/pricing"
	"github.com/claudioc0/ecommerce0-sub001/repository"
	"github.com/claudioc0/ecommerce0-sub001/risk"
	"github.com/claudioc0/ecommerce0-sub001/routes"
	"github.com/claudioc0/ecommerce0-sub001/services"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var now = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type testServer struct {
	router     *gin.Engine
	bus        *eventbus.Bus
	center     *notifications.Center
	coupons    *repository.StaticCouponRepository
	deliveries *repository.MemoryDeliveryRepository
	score      int
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	srv := &testServer{score: 10}

	store := kvstore.NewMemoryStore("test")
	srv.coupons = repository.NewStaticCouponRepository(models.Coupon{
		Code:       "SAVE10",
		Type:       models.CouponTypePercentage,
		Value:      decimal.NewFromInt(10),
		ExpiresAt:  now.Add(24 * time.Hour),
		UsageLimit: 100,
	})
	srv.deliveries = repository.NewMemoryDeliveryRepository()
	srv.bus = eventbus.New(nil, eventbus.WithClock(clock))
	srv.center = notifications.New(nil, notifications.WithClock(clock))
	t.Cleanup(srv.center.Close)

	engine := pricing.NewEngine(pricing.DefaultRules())
	lifecycle := services.NewOrderLifecycle(repository.NewKVOrderRepository(store), srv.bus, nil, services.WithLifecycleClock(clock))
	carts := services.NewCartService(store, srv.coupons, engine, clock, nil)
	checkout := services.NewCheckoutService(services.CheckoutDeps{
		Carts:     carts,
		Coupons:   srv.coupons,
		Engine:    engine,
		Analyzer:  risk.AnalyzerFunc(func(context.Context, models.OrderAttempt) (int, error) { return srv.score, nil }),
		Lifecycle: lifecycle,
		Events:    srv.bus,
		Notifier:  srv.center,
		Now:       clock,
	})

	srv.router = gin.New()
	routes.RegisterRoutes(srv.router, routes.Controllers{
		Cart:          controllers.NewCartController(carts, nil),
		Checkout:      controllers.NewCheckoutController(checkout, nil),
		Orders:        controllers.NewOrderController(lifecycle, nil),
		Coupons:       controllers.NewCouponController(srv.coupons, nil),
		Notifications: controllers.NewNotificationController(srv.center),
		Events:        controllers.NewEventController(srv.bus),
		Deliveries:    controllers.NewDeliveryController(srv.deliveries, nil),
	}, nil)
	return srv
}

func (s *testServer) do(t *testing.T, method, path, userID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func addItem(id string, price int64, qty int) gin.H {
	return gin.H{
		"product":  gin.H{"id": id, "name": "Item " + id, "unit_price": decimal.NewFromInt(price), "stock": 10},
		"quantity": qty,
	}
}

func customer() gin.H {
	return gin.H{"customer": gin.H{
		"name":     "Ana Souza",
		"email":    "ana@example.com",
		"address":  "Rua A, 1",
		"city":     "São Paulo",
		"zip_code": "01000-000",
	}}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	w := srv.do(t, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCart_RequiresUser(t *testing.T) {
	srv := newTestServer(t)
	w := srv.do(t, http.MethodGet, "/cart", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCart_Flow(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/cart/items", "u1", "", addItem("p1", 50, 3))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cart := decode[models.Cart](t, w)
	assert.Equal(t, 3, cart.ItemCount())

	w = srv.do(t, http.MethodGet, "/cart/totals", "u1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	totals := decode[models.CartTotals](t, w)
	assert.True(t, decimal.RequireFromString("165.90").Equal(totals.Total), totals.Total.String())

	w = srv.do(t, http.MethodPost, "/cart/coupon", "u1", "", gin.H{"code": "save10"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	applied := decode[models.ApplyCouponResponse](t, w)
	assert.Equal(t, "SAVE10", applied.Code)
	assert.True(t, decimal.NewFromInt(15).Equal(applied.Discount))

	w = srv.do(t, http.MethodPut, "/cart/items", "u1", "", gin.H{"product_id": "p1", "quantity": 1})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[models.Cart](t, w)
	assert.Equal(t, 1, updated.ItemCount())

	w = srv.do(t, http.MethodDelete, "/cart/coupon", "u1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[models.Cart](t, w).CouponCode)

	w = srv.do(t, http.MethodDelete, "/cart/items/p1", "u1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[models.Cart](t, w).Items)

	w = srv.do(t, http.MethodDelete, "/cart/items/p1", "u1", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// other users never see u1's cart
	w = srv.do(t, http.MethodGet, "/cart", "u2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[models.Cart](t, w).Items)
}

func TestCart_Errors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"bad quantity", http.MethodPost, "/cart/items", addItem("p1", 10, 0), http.StatusBadRequest},
		{"over stock", http.MethodPost, "/cart/items", addItem("p1", 10, 11), http.StatusBadRequest},
		{"unknown coupon", http.MethodPost, "/cart/coupon", gin.H{"code": "NOPE"}, http.StatusUnprocessableEntity},
		{"malformed coupon", http.MethodPost, "/cart/coupon", gin.H{"code": "a b"}, http.StatusBadRequest},
		{"missing coupon", http.MethodPost, "/cart/coupon", gin.H{}, http.StatusBadRequest},
		{"update unknown line", http.MethodPut, "/cart/items", gin.H{"product_id": "zz", "quantity": 2}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(t, tt.method, tt.path, "u1", "", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Contains(t, decode[map[string]any](t, w), "error")
		})
	}
}

func TestCheckout_PlacedAndOrders(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/cart/items", "u1", "", addItem("p1", 100, 2)).Code)

	w := srv.do(t, http.MethodPost, "/checkout", "u1", "", customer())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	result := decode[services.CheckoutResult](t, w)
	assert.Equal(t, services.CheckoutPlaced, result.Status)
	require.NotNil(t, result.Order)
	assert.Equal(t, models.OrderStatusPending, result.Order.Status)
	orderPath := "/orders/" + result.Order.ID.String()

	w = srv.do(t, http.MethodGet, "/cart", "u1", "", nil)
	assert.Empty(t, decode[models.Cart](t, w).Items)

	w = srv.do(t, http.MethodGet, "/orders", "u1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["total"])

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, orderPath, "u1", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, orderPath, "u2", "", nil).Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, orderPath, "admin", "admin", nil).Code)

	w = srv.do(t, http.MethodPatch, "/admin"+orderPath+"/status", "u1", "", gin.H{"status": "shipped"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = srv.do(t, http.MethodPatch, "/admin"+orderPath+"/status", "admin", "admin", gin.H{"status": "shipped"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	order := decode[models.Order](t, w)
	assert.Equal(t, models.OrderStatusShipped, order.Status)
	assert.Len(t, order.StatusHistory, 2)

	w = srv.do(t, http.MethodPatch, "/admin"+orderPath+"/status", "admin", "admin", gin.H{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodPost, "/admin"+orderPath+"/cancel", "admin", "admin", gin.H{"reason": "customer request"})
	require.Equal(t, http.StatusOK, w.Code)
	order = decode[models.Order](t, w)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, "customer request", order.StatusHistory[len(order.StatusHistory)-1].Description)

	w = srv.do(t, http.MethodPost, "/admin/orders/not-a-uuid/cancel", "admin", "admin", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(t, http.MethodGet, "/admin/orders", "admin", "admin", nil)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["total"])

	w = srv.do(t, http.MethodGet, "/admin/events?type=order_status_changed", "admin", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode[map[string]any](t, w)["total"])
}

func TestCheckout_Rejected(t *testing.T) {
	srv := newTestServer(t)
	srv.score = 85
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/cart/items", "u1", "", addItem("p1", 100, 1)).Code)

	w := srv.do(t, http.MethodPost, "/checkout", "u1", "", customer())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[services.CheckoutResult](t, w)
	assert.Equal(t, services.CheckoutRejected, result.Status)
	assert.Nil(t, result.Order)
	assert.Equal(t, 85, result.RiskScore)

	// cart is kept for another attempt
	w = srv.do(t, http.MethodGet, "/cart", "u1", "", nil)
	assert.Len(t, decode[models.Cart](t, w).Items, 1)

	w = srv.do(t, http.MethodGet, "/notifications?type=order_rejected", "u1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["total"])

	w = srv.do(t, http.MethodGet, "/notifications?type=order_rejected", "u2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode[map[string]any](t, w)["total"])
}

func TestCheckout_Errors(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/checkout", "u1", "", customer())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Cart is empty", decode[map[string]any](t, w)["error"])

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/cart/items", "u1", "", addItem("p1", 100, 1)).Code)
	w = srv.do(t, http.MethodPost, "/checkout", "u1", "", gin.H{"customer": gin.H{"name": "A"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Validation error", decode[map[string]any](t, w)["error"])

	w = srv.do(t, http.MethodPost, "/checkout", "", "", customer())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNotifications(t *testing.T) {
	srv := newTestServer(t)
	first := srv.center.Post(models.NotificationInfo, map[string]any{"title": "Hello"}, notifications.PostOptions{Recipient: "u1", Persistent: true})
	srv.center.Post(models.NotificationWarning, map[string]any{"title": "Shipping delayed"}, notifications.PostOptions{Recipient: "u1", Persistent: true})

	w := srv.do(t, http.MethodGet, "/notifications", "u1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 2, body["unread"])

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodPatch, "/notifications/"+first+"/read", "u1", "", nil).Code)
	w = srv.do(t, http.MethodGet, "/notifications/unread-count", "u1", "", nil)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["unread"])

	w = srv.do(t, http.MethodGet, "/notifications?unread=true", "u1", "", nil)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["total"])

	w = srv.do(t, http.MethodGet, "/notifications/"+first, "u1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello", decode[notifications.Notification](t, w).Title)

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodDelete, "/notifications/"+first, "u1", "", nil).Code)
	w = srv.do(t, http.MethodGet, "/notifications", "u1", "", nil)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["total"])

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodPatch, "/notifications/read-all", "u1", "", nil).Code)
	assert.Equal(t, 0, srv.center.UnreadCount())

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodDelete, "/notifications/missing", "u1", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPatch, "/notifications/missing/read", "u1", "", nil).Code)
}

func TestNotifications_ScopedToOwner(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.center.Post(models.EventOrderRejected, map[string]any{"customer_id": "alice", "risk_score": 90},
		notifications.PostOptions{Recipient: "alice", Title: "Order not approved", Persistent: true})
	stock := srv.center.Post(models.EventLowStock, map[string]any{"product_id": "p1"},
		notifications.PostOptions{Title: "Low stock", Persistent: true})

	w := srv.do(t, http.MethodGet, "/notifications", "mallory", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.EqualValues(t, 0, body["total"])
	assert.EqualValues(t, 0, body["unread"])

	for _, id := range []string{alice, stock} {
		assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/notifications/"+id, "mallory", "", nil).Code)
		assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPatch, "/notifications/"+id+"/read", "mallory", "", nil).Code)
		assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodDelete, "/notifications/"+id, "mallory", "", nil).Code)
	}
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodPatch, "/notifications/read-all", "mallory", "", nil).Code)

	n, ok := srv.center.Get(alice)
	require.True(t, ok)
	assert.False(t, n.Read)
	assert.False(t, n.Dismissed)

	w = srv.do(t, http.MethodGet, "/notifications", "alice", "", nil)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["total"])

	w = srv.do(t, http.MethodGet, "/notifications", "admin", "admin", nil)
	assert.EqualValues(t, 2, decode[map[string]any](t, w)["total"])
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodDelete, "/notifications/"+stock, "admin", "admin", nil).Code)
}

func TestCoupons(t *testing.T) {
	srv := newTestServer(t)
	create := func(body gin.H) *httptest.ResponseRecorder {
		return srv.do(t, http.MethodPost, "/admin/coupons", "admin", "admin", body)
	}

	w := create(gin.H{"code": "frete", "type": "free_shipping", "usage_limit": 10, "expires_at": now.Add(time.Hour)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = create(gin.H{"code": "SAVE10", "type": "percentage", "value": "5", "usage_limit": 10, "expires_at": now.Add(time.Hour)})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = create(gin.H{"code": "BIG", "type": "percentage", "value": "150", "usage_limit": 10, "expires_at": now.Add(time.Hour)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = create(gin.H{"code": "ZERO", "type": "fixed", "value": "0", "usage_limit": 10, "expires_at": now.Add(time.Hour)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = create(gin.H{"code": "X", "type": "fixed", "value": "5", "usage_limit": 10, "expires_at": now.Add(time.Hour)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodGet, "/coupons/FRETE", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/coupons/GHOST", "", "", nil).Code)

	w = srv.do(t, http.MethodGet, "/admin/coupons", "admin", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, w)["total"])

	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodGet, "/admin/coupons", "u1", "", nil).Code)
}

func TestEvents_Listeners(t *testing.T) {
	srv := newTestServer(t)
	srv.bus.Subscribe(models.EventOrderPlaced, func(context.Context, eventbus.Event) (any, error) { return nil, nil }, eventbus.SubscribeOptions{})

	w := srv.do(t, http.MethodGet, "/admin/events/listeners", "admin", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]map[string]int](t, w)
	assert.Equal(t, 1, body["listeners"][models.EventOrderPlaced])
}

func TestDeliveryLogs(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, srv.deliveries.SaveLog(ctx, &models.DeliveryLog{OrderID: "o1", Channel: models.ChannelEmail, Status: models.StatusSent}))
	}
	require.NoError(t, srv.deliveries.SaveLog(ctx, &models.DeliveryLog{OrderID: "o2", Channel: models.ChannelSMS, Status: models.StatusFailed}))

	w := srv.do(t, http.MethodGet, "/admin/deliveries?order_id=o1&page_size=2", "admin", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 2, body["total_pages"])
	assert.Len(t, body["data"], 2)

	w = srv.do(t, http.MethodGet, "/admin/deliveries?channel=sms", "admin", "admin", nil)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["total"])
}
