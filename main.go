package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claudioc0/ecommerce0-sub001/common/logger"
	"github.com/claudioc0/ecommerce0-sub001/controllers"
	"github.com/claudioc0/ecommerce0-sub001/database"
	"github.com/claudioc0/ecommerce0-sub001/eventbus"
	"github.com/claudioc0/ecommerce0-sub001/kafka"
	"github.com/claudioc0/ecommerce0-sub001/middleware"
	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/claudioc0/ecommerce0-sub001/notifications"
	aws_pkg "github.com/claudioc0/ecommerce0-sub001/pkg/aws"
	"github.com/claudioc0/ecommerce0-sub001/pkg/kvstore"
	"github.com/claudioc0/ecommerce0-sub001/pricing"
	"github.com/claudioc0/ecommerce0-sub001/rabbitmq"
	"github.com/claudioc0/ecommerce0-sub001/repository"
	"github.com/claudioc0/ecommerce0-sub001/risk"
	"github.com/claudioc0/ecommerce0-sub001/routes"
	"github.com/claudioc0/ecommerce0-sub001/sender"
	"github.com/claudioc0/ecommerce0-sub001/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const serviceName = "checkout-service"

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.Env, nil)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	ctx := context.Background()

	shutdownTracing, err := middleware.InitTracing(serviceName, cfg.JaegerEndpoint)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdownTracing()

	// Storage
	cartStore, orderStore := newStores(ctx, cfg, log)

	var db *gorm.DB
	if cfg.Postgres.Enabled() {
		db, err = database.ConnectPostgres(cfg.Postgres, log, &models.Coupon{}, &models.DeliveryLog{})
		if err != nil {
			log.Fatal("DB connection failed", zap.Error(err))
		}
		defer func() {
			if err := database.Close(db); err != nil {
				log.Error("Database close error", zap.Error(err))
			}
		}()
	}
	coupons, deliveries := newRepositories(db, log)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewMetrics(reg)

	// Core
	bus := eventbus.New(log,
		eventbus.WithHistoryLimit(cfg.EventHistoryLimit),
		eventbus.WithDefaultTimeout(cfg.PublishTimeout),
		eventbus.WithObserver(metrics.ObserveDispatch),
	)
	center := notifications.New(log, notifications.WithLimit(cfg.NotificationLimit))
	defer center.Close()

	engine := pricing.NewEngine(cfg.Pricing)
	lifecycle := services.NewOrderLifecycle(repository.NewKVOrderRepository(orderStore), bus, log)
	carts := services.NewCartService(cartStore, coupons, engine, time.Now, log)
	checkout := services.NewCheckoutService(services.CheckoutDeps{
		Carts:          carts,
		Coupons:        coupons,
		Engine:         engine,
		Analyzer:       newAnalyzer(cfg, log),
		Lifecycle:      lifecycle,
		Events:         bus,
		Notifier:       center,
		PublishTimeout: cfg.PublishTimeout,
		Logger:         log,
	})

	// Side effects
	email, sms := newChannels(cfg, log)
	relays, closers := newRelays(ctx, cfg, log)
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Warn("Relay close error", zap.Error(err))
			}
		}
	}()

	listeners := &services.CheckoutListeners{
		Notifier:          center,
		Analytics:         metrics,
		Sender:            sender.NewDispatcher(deliveries, log),
		Email:             email,
		SMS:               sms,
		Relays:            relays,
		LowStockThreshold: cfg.LowStockThreshold,
		Logger:            log,
	}
	unsubscribe := listeners.Register(bus)
	defer unsubscribe()

	// Router
	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, 10*time.Minute)
	stopSweep := make(chan struct{})
	go limiter.Run(stopSweep)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		otelgin.Middleware(serviceName),
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(log),
		middleware.CORS(cfg.CORSOrigins),
		metrics.Middleware(),
	)
	r.GET("/metrics", metrics.Handler())

	routes.RegisterRoutes(r, routes.Controllers{
		Cart:          controllers.NewCartController(carts, log),
		Checkout:      controllers.NewCheckoutController(checkout, log),
		Orders:        controllers.NewOrderController(lifecycle, log),
		Coupons:       controllers.NewCouponController(coupons, log),
		Notifications: controllers.NewNotificationController(center),
		Events:        controllers.NewEventController(bus),
		Deliveries:    controllers.NewDeliveryController(deliveries, log),
	}, limiter.Middleware())

	// HTTP server
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info("Checkout service started", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Initiating graceful shutdown...")
	close(stopSweep)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
	log.Info("Checkout service stopped gracefully")
}

// newStores returns the cart and order stores: Redis when REDIS_URL is set
// and reachable, memory otherwise.
func newStores(ctx context.Context, cfg *Config, log *zap.Logger) (kvstore.Store, kvstore.Store) {
	if cfg.RedisURL == "" {
		log.Info("REDIS_URL not set, keeping carts and orders in memory")
		return kvstore.NewMemoryStore(cartNamespace), kvstore.NewMemoryStore(orderNamespace)
	}
	client, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal("Redis connection failed", zap.Error(err))
	}
	log.Info("Connected to Redis")
	carts, orders := redisStores(client, cfg.CartTTL)
	return carts, orders
}

const (
	cartNamespace  = "checkout"
	orderNamespace = "orders"
)

// redisStores expires abandoned carts after cartTTL. Orders never expire.
func redisStores(client *redis.Client, cartTTL time.Duration) (*kvstore.RedisStore, *kvstore.RedisStore) {
	return kvstore.NewRedisStore(client, cartNamespace, cartTTL), kvstore.NewRedisStore(client, orderNamespace, 0)
}

func newRepositories(db *gorm.DB, log *zap.Logger) (repository.CouponRepository, repository.DeliveryRepository) {
	if db != nil {
		return repository.NewGormCouponRepository(db), repository.NewDeliveryRepository(db)
	}
	log.Info("Postgres not configured, using built-in coupons and in-memory delivery log")
	return repository.NewStaticCouponRepository(defaultCoupons(time.Now())...), repository.NewMemoryDeliveryRepository()
}

func defaultCoupons(now time.Time) []models.Coupon {
	expires := now.AddDate(1, 0, 0)
	return []models.Coupon{
		{Code: "BEMVINDO10", Type: models.CouponTypePercentage, Value: decimal.NewFromInt(10), ExpiresAt: expires, UsageLimit: 1000},
		{Code: "DESCONTO20", Type: models.CouponTypeFixed, Value: decimal.NewFromInt(20), ExpiresAt: expires, UsageLimit: 500},
		{Code: "FRETEGRATIS", Type: models.CouponTypeFreeShipping, ExpiresAt: expires, UsageLimit: 1000},
	}
}

func newAnalyzer(cfg *Config, log *zap.Logger) risk.Analyzer {
	if cfg.RiskEndpoint != "" {
		log.Info("Using remote risk analyzer", zap.String("endpoint", cfg.RiskEndpoint))
		return risk.NewHTTPAnalyzer(cfg.RiskEndpoint, cfg.RiskAPIKey, cfg.RiskTimeout, log)
	}
	return risk.NewHeuristicAnalyzer(log, risk.WithLatency(cfg.RiskLatency))
}

// newChannels builds the real email/SMS channels when configured and falls
// back to simulated delivery otherwise.
func newChannels(cfg *Config, log *zap.Logger) (sender.Channel, sender.Channel) {
	var email, sms sender.Channel

	if cfg.SMTP.Host != "" {
		ch, err := sender.NewEmailChannel(cfg.SMTP)
		if err != nil {
			log.Fatal("Failed to init SMTP sender", zap.Error(err))
		}
		email = ch
	} else {
		log.Info("SMTP not configured, simulating email delivery")
		email = sender.NewSimulatedChannel(models.ChannelEmail, 200*time.Millisecond, 0, time.Now().UnixNano())
	}

	if cfg.Twilio.AccountSID != "" {
		ch, err := sender.NewSMSChannel(cfg.Twilio)
		if err != nil {
			log.Fatal("Failed to init Twilio sender", zap.Error(err))
		}
		sms = ch
	} else {
		log.Info("Twilio not configured, simulating SMS delivery")
		sms = sender.NewSimulatedChannel(models.ChannelSMS, 200*time.Millisecond, 0, time.Now().UnixNano())
	}
	return email, sms
}

// newRelays connects every configured broker. A broker that cannot be
// reached is logged and skipped.
func newRelays(ctx context.Context, cfg *Config, log *zap.Logger) ([]services.Relay, []io.Closer) {
	var relays []services.Relay
	var closers []io.Closer

	if brokers := kafka.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		p, err := kafka.NewProducer(brokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Warn("Kafka relay disabled", zap.Error(err))
		} else {
			relays = append(relays, p)
			closers = append(closers, p)
		}
	}

	if cfg.RabbitMQURL != "" {
		p, err := rabbitmq.Dial(cfg.RabbitMQURL, cfg.RabbitMQExchange, log)
		if err != nil {
			log.Warn("RabbitMQ relay disabled", zap.Error(err))
		} else {
			relays = append(relays, p)
			closers = append(closers, p)
		}
	}

	if cfg.SNSTopicARN != "" {
		awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
		if err != nil {
			log.Warn("SNS relay disabled", zap.Error(err))
		} else if relay, err := aws_pkg.NewSNSRelay(awsCfg, cfg.SNSTopicARN); err != nil {
			log.Warn("SNS relay disabled", zap.Error(err))
		} else {
			relays = append(relays, relay)
		}
	}

	for _, r := range relays {
		log.Info("Event relay enabled", zap.String("relay", r.Name()))
	}
	return relays, closers
}
