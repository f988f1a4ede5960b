package sender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/claudioc0/ecommerce0-sub001/repository"
	"go.uber.org/zap"
)

// ErrInvalidRecipient is returned when a channel rejects the recipient address.
var ErrInvalidRecipient = errors.New("invalid recipient")

type Result struct {
	MessageID string    `json:"message_id"`
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	SentAt    time.Time `json:"sent_at"`
}

// Options carries per-message metadata through formatting and delivery.
type Options struct {
	OrderID string
	Type    string
	Subject string
	// Delay is an artificial wait before delivery; it honors ctx.
	Delay time.Duration
}

// Channel is one outbound medium. Send drives every channel through the
// same validate, format, deliver sequence.
type Channel interface {
	Name() string
	Validate(recipient string) error
	Format(message string, opts Options) string
	Deliver(ctx context.Context, recipient, body string, opts Options) (Result, error)
}

type Dispatcher struct {
	repo     repository.DeliveryRepository
	logger   *zap.Logger
	attempts int
	backoff  time.Duration
}

type DispatcherOption func(*Dispatcher)

// WithRetry sets how many delivery attempts are made and the linear backoff
// between them.
func WithRetry(attempts int, backoff time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if attempts > 0 {
			d.attempts = attempts
		}
		d.backoff = backoff
	}
}

func NewDispatcher(repo repository.DeliveryRepository, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		repo:     repo,
		logger:   logger,
		attempts: 3,
		backoff:  time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send validates the recipient, formats the message, waits opts.Delay, then
// delivers with retries. Every attempt that reaches delivery is recorded in
// the delivery log, success or not.
func (d *Dispatcher) Send(ctx context.Context, ch Channel, recipient, message string, opts Options) (Result, error) {
	if err := ch.Validate(recipient); err != nil {
		return Result{}, fmt.Errorf("%s: %w", ch.Name(), err)
	}

	body := ch.Format(message, opts)

	if err := wait(ctx, opts.Delay); err != nil {
		return Result{}, err
	}

	var (
		result  Result
		lastErr error
	)
	for attempt := 0; attempt < d.attempts; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, time.Duration(attempt)*d.backoff); err != nil {
				lastErr = err
				break
			}
		}

		result, lastErr = ch.Deliver(ctx, recipient, body, opts)
		if lastErr == nil {
			break
		}

		d.logger.Warn("send attempt failed",
			zap.String("channel", ch.Name()),
			zap.String("type", opts.Type),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	d.record(ctx, ch.Name(), recipient, result, lastErr, opts)

	if lastErr != nil {
		return Result{}, lastErr
	}
	result.Channel = ch.Name()
	result.Recipient = recipient
	return result, nil
}

func (d *Dispatcher) record(ctx context.Context, channel, recipient string, result Result, sendErr error, opts Options) {
	status := models.StatusSent
	errMsg := ""
	if sendErr != nil {
		status = models.StatusFailed
		errMsg = sendErr.Error()
	}

	d.logger.Info("notification delivered",
		zap.String("type", opts.Type),
		zap.String("channel", channel),
		zap.String("status", status),
		zap.String("message_id", result.MessageID),
	)

	if d.repo == nil {
		return
	}
	entry := &models.DeliveryLog{
		OrderID:   opts.OrderID,
		Recipient: recipient,
		Type:      opts.Type,
		Channel:   channel,
		Status:    status,
		MessageID: result.MessageID,
		Error:     errMsg,
	}
	// The log write must survive a caller context that was cancelled mid-send.
	if err := d.repo.SaveLog(context.WithoutCancel(ctx), entry); err != nil {
		d.logger.Error("failed to save delivery log", zap.Error(err))
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
