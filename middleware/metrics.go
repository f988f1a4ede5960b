package middleware

import (
	"strconv"
	"time"

	"github.com/claudioc0/ecommerce0-sub001/eventbus"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the HTTP and checkout collectors. It also serves as the
// checkout analytics sink and the event bus observer.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	ordersPlacedTotal   prometheus.Counter
	ordersRejectedTotal prometheus.Counter
	orderValue          prometheus.Histogram
	itemsSoldTotal      prometheus.Counter
	riskScore           prometheus.Histogram
	lowStockTotal       *prometheus.CounterVec
	listenerResults     *prometheus.CounterVec
}

// NewMetrics registers every collector on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		ordersPlacedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkout_orders_placed_total",
			Help: "Total number of orders placed",
		}),
		ordersRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkout_orders_rejected_total",
			Help: "Total number of checkouts rejected by the risk gate",
		}),
		orderValue: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkout_order_value",
			Help:    "Order totals",
			Buckets: []float64{25, 50, 100, 200, 500, 1000, 2500},
		}),
		itemsSoldTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkout_items_sold_total",
			Help: "Total units across placed orders",
		}),
		riskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkout_rejected_risk_score",
			Help:    "Risk scores of rejected checkouts",
			Buckets: prometheus.LinearBuckets(80, 5, 5),
		}),
		lowStockTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_low_stock_alerts_total",
				Help: "Low stock alerts raised per product",
			},
			[]string{"product_id"},
		),
		listenerResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbus_listener_results_total",
				Help: "Listener outcomes per event type",
			},
			[]string{"event", "result"},
		),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.ordersPlacedTotal,
		m.ordersRejectedTotal,
		m.orderValue,
		m.itemsSoldTotal,
		m.riskScore,
		m.lowStockTotal,
		m.listenerResults,
	)
	return m
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}

func (m *Metrics) OrderPlaced(total float64, items int) {
	m.ordersPlacedTotal.Inc()
	m.orderValue.Observe(total)
	m.itemsSoldTotal.Add(float64(items))
}

func (m *Metrics) OrderRejected(riskScore int) {
	m.ordersRejectedTotal.Inc()
	m.riskScore.Observe(float64(riskScore))
}

func (m *Metrics) LowStock(productID string) {
	m.lowStockTotal.WithLabelValues(productID).Inc()
}

// ObserveDispatch counts listener outcomes. It matches eventbus.Observer.
func (m *Metrics) ObserveDispatch(eventType string, results []eventbus.DispatchResult) {
	for _, r := range results {
		outcome := "success"
		if !r.Success {
			outcome = "failure"
		}
		m.listenerResults.WithLabelValues(eventType, outcome).Inc()
	}
}
