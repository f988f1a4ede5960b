package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/claudioc0/ecommerce0-sub001/database"
	aws_pkg "github.com/claudioc0/ecommerce0-sub001/pkg/aws"
	"github.com/claudioc0/ecommerce0-sub001/pricing"
	"github.com/claudioc0/ecommerce0-sub001/sender"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// secretName holds the JSON secret read when AWS_USE_SECRETS=true.
const secretName = "checkout/SERVICE_SECRETS"

// Config holds all configuration for the checkout service.
type Config struct {
	Port string
	Env  string

	// RedisURL empty keeps carts and orders in memory.
	RedisURL string
	CartTTL  time.Duration

	// Postgres with no user or db name falls back to the built-in coupon list.
	Postgres database.PostgresConfig

	Pricing pricing.Rules

	// RiskEndpoint empty scores attempts with the local heuristic.
	RiskEndpoint string
	RiskAPIKey   string
	RiskTimeout  time.Duration
	RiskLatency  time.Duration

	SMTP   sender.SMTPConfig
	Twilio sender.TwilioConfig

	KafkaBrokers     string
	KafkaTopic       string
	RabbitMQURL      string
	RabbitMQExchange string
	SNSTopicARN      string

	// JaegerEndpoint empty keeps spans in-process.
	JaegerEndpoint string

	RateLimitRPS      float64
	RateLimitBurst    int
	CORSOrigins       []string
	LowStockThreshold int
	PublishTimeout    time.Duration
	EventHistoryLimit int
	NotificationLimit int
}

// LoadConfig reads configuration from .env and the environment, with an
// optional Secrets Manager override of credentials.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("APP_ENV", "development"),
		RedisURL: os.Getenv("REDIS_URL"),
		Postgres: database.PostgresConfig{
			Host:     os.Getenv("POSTGRES_HOST"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   os.Getenv("POSTGRES_DB"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),
		},
		RiskEndpoint: os.Getenv("RISK_ENDPOINT"),
		RiskAPIKey:   os.Getenv("RISK_API_KEY"),
		SMTP: sender.SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
		Twilio: sender.TwilioConfig{
			AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			FromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		},
		KafkaBrokers:     os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "checkout.events"),
		RabbitMQURL:      os.Getenv("RABBITMQ_URL"),
		RabbitMQExchange: getEnv("RABBITMQ_EXCHANGE", "checkout_exchange"),
		SNSTopicARN:      os.Getenv("CHECKOUT_SNS_TOPIC_ARN"),
		JaegerEndpoint:   os.Getenv("JAEGER_ENDPOINT"),
		CORSOrigins:      splitList(getEnv("CORS_ORIGINS", "*")),
	}

	var err error
	if cfg.CartTTL, err = durationEnv("CART_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RiskTimeout, err = durationEnv("RISK_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RiskLatency, err = durationEnv("RISK_SIMULATED_LATENCY", 0); err != nil {
		return nil, err
	}
	if cfg.PublishTimeout, err = durationEnv("PUBLISH_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = floatEnv("CHECKOUT_RATE_LIMIT_RPS", 1); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = intEnv("CHECKOUT_RATE_LIMIT_BURST", 5); err != nil {
		return nil, err
	}
	if cfg.LowStockThreshold, err = intEnv("LOW_STOCK_THRESHOLD", 5); err != nil {
		return nil, err
	}
	if cfg.EventHistoryLimit, err = intEnv("EVENT_HISTORY_LIMIT", 100); err != nil {
		return nil, err
	}
	if cfg.NotificationLimit, err = intEnv("NOTIFICATION_LIMIT", 50); err != nil {
		return nil, err
	}

	rules := pricing.DefaultRules()
	if rules.FreeShippingThreshold, err = decimalEnv("FREE_SHIPPING_THRESHOLD", rules.FreeShippingThreshold); err != nil {
		return nil, err
	}
	if rules.ShippingFee, err = decimalEnv("SHIPPING_FEE", rules.ShippingFee); err != nil {
		return nil, err
	}
	cfg.Pricing = rules

	// Override credentials from Secrets Manager when running on AWS
	if os.Getenv("AWS_USE_SECRETS") == "true" {
		ctx := context.Background()
		awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("AWS_USE_SECRETS: load aws config: %w", err)
		}
		if err := cfg.loadSecrets(ctx, aws_pkg.NewSecretsClient(awsCfg)); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

type secretSource interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// loadSecrets applies the service secret from src. A missing or unreadable
// secret is an error: the service must not fall back to env credentials.
func (c *Config) loadSecrets(ctx context.Context, src secretSource) error {
	secrets, err := src.GetSecretMap(ctx, secretName)
	if err != nil {
		return fmt.Errorf("AWS_USE_SECRETS: %w", err)
	}
	c.applySecrets(secrets)
	return nil
}

// applySecrets overrides credentials with non-empty values from m.
func (c *Config) applySecrets(m map[string]string) {
	set := func(dst *string, key string) {
		if v, ok := m[key]; ok && v != "" {
			*dst = v
		}
	}
	set(&c.Postgres.User, "POSTGRES_USER")
	set(&c.Postgres.Password, "POSTGRES_PASSWORD")
	set(&c.Postgres.DBName, "POSTGRES_DB")
	set(&c.Postgres.Host, "POSTGRES_HOST")
	set(&c.Postgres.Port, "POSTGRES_PORT")
	set(&c.RedisURL, "REDIS_URL")
	set(&c.RiskAPIKey, "RISK_API_KEY")
	set(&c.SMTP.Username, "SMTP_USERNAME")
	set(&c.SMTP.Password, "SMTP_PASSWORD")
	set(&c.Twilio.AccountSID, "TWILIO_ACCOUNT_SID")
	set(&c.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")
	set(&c.RabbitMQURL, "RABBITMQ_URL")
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func decimalEnv(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
