package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/claudioc0/ecommerce0-sub001/models"
	"go.uber.org/zap"
)

// HTTPAnalyzer asks a remote scoring service. The service receives the
// attempt as JSON and answers {"score": n}.
type HTTPAnalyzer struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHTTPAnalyzer(endpoint, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPAnalyzer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPAnalyzer{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type scoreResponse struct {
	Score *int `json:"score"`
}

func (h *HTTPAnalyzer) Analyze(ctx context.Context, attempt models.OrderAttempt) (int, error) {
	body, err := json.Marshal(attempt)
	if err != nil {
		return 0, fmt.Errorf("failed to encode attempt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("risk request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if readErr != nil {
			h.logger.Warn("Failed to read risk service error body",
				zap.Int("status", resp.StatusCode),
				zap.Error(readErr),
			)
		}
		h.logger.Warn("Risk service returned an error",
			zap.String("endpoint", h.endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return 0, fmt.Errorf("risk service error %s: %s", resp.Status, string(respBody))
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode risk response: %w", err)
	}
	if out.Score == nil {
		return 0, fmt.Errorf("risk response has no score")
	}

	score := Clamp(*out.Score)
	h.logger.Debug("risk scored remotely",
		zap.Int("raw_score", *out.Score),
		zap.Int("score", score),
	)
	return score, nil
}
