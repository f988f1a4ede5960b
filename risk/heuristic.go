package risk

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var disposableDomains = map[string]bool{
	"mailinator.com":    true,
	"tempmail.com":      true,
	"10minutemail.com":  true,
	"guerrillamail.com": true,
	"yopmail.com":       true,
}

var (
	highValue   = decimal.NewFromInt(1000)
	mediumValue = decimal.NewFromInt(500)
)

// HeuristicAnalyzer scores attempts locally from order value, basket shape
// and customer data, plus bounded jitter.
type HeuristicAnalyzer struct {
	latency   time.Duration
	maxJitter int
	mu        sync.Mutex
	rng       *rand.Rand
	logger    *zap.Logger
}

type HeuristicOption func(*HeuristicAnalyzer)

// WithLatency simulates the round trip of a remote scoring service.
func WithLatency(d time.Duration) HeuristicOption {
	return func(a *HeuristicAnalyzer) { a.latency = d }
}

// WithJitter sets the upper bound of the random component; 0 disables it.
func WithJitter(max int) HeuristicOption {
	return func(a *HeuristicAnalyzer) { a.maxJitter = max }
}

func WithSeed(seed int64) HeuristicOption {
	return func(a *HeuristicAnalyzer) { a.rng = rand.New(rand.NewSource(seed)) }
}

func NewHeuristicAnalyzer(logger *zap.Logger, opts ...HeuristicOption) *HeuristicAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &HeuristicAnalyzer{
		maxJitter: 20,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *HeuristicAnalyzer) Analyze(ctx context.Context, attempt models.OrderAttempt) (int, error) {
	if a.latency > 0 {
		timer := time.NewTimer(a.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}
	}

	score := 5
	var reasons []string

	switch {
	case attempt.Totals.Total.GreaterThan(highValue):
		score += 30
		reasons = append(reasons, "high_value")
	case attempt.Totals.Total.GreaterThan(mediumValue):
		score += 15
		reasons = append(reasons, "medium_value")
	}

	units := 0
	for _, it := range attempt.Items {
		units += it.Quantity
		if it.Quantity > 5 {
			score += 10
			reasons = append(reasons, "bulk_line")
		}
	}
	if units > 10 {
		score += 15
		reasons = append(reasons, "many_units")
	}

	if attempt.Customer.Phone == "" {
		score += 10
		reasons = append(reasons, "no_phone")
	}
	if at := strings.LastIndex(attempt.Customer.Email, "@"); at >= 0 {
		if disposableDomains[strings.ToLower(attempt.Customer.Email[at+1:])] {
			score += 25
			reasons = append(reasons, "disposable_email")
		}
	}

	if a.maxJitter > 0 {
		a.mu.Lock()
		score += a.rng.Intn(a.maxJitter + 1)
		a.mu.Unlock()
	}

	score = Clamp(score)
	a.logger.Debug("risk analyzed",
		zap.String("customer_email", attempt.Customer.Email),
		zap.Int("score", score),
		zap.Strings("reasons", reasons),
	)
	return score, nil
}
