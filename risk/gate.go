// Package risk scores checkout attempts before an order is created.
package risk

import (
	"context"

	"github.com/claudioc0/ecommerce0-sub001/models"
)

// AcceptanceThreshold is the lowest score that blocks an order.
const AcceptanceThreshold = 80

// Analyzer scores an order attempt from 0 (safe) to 100 (fraudulent). It is
// called once per checkout attempt and is never retried.
type Analyzer interface {
	Analyze(ctx context.Context, attempt models.OrderAttempt) (int, error)
}

// IsAcceptable reports whether an order with score may be created.
func IsAcceptable(score int) bool {
	return score < AcceptanceThreshold
}

// Clamp bounds score to 0..100.
func Clamp(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, attempt models.OrderAttempt) (int, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, attempt models.OrderAttempt) (int, error) {
	return f(ctx, attempt)
}
