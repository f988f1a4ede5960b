package sender

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/google/uuid"
)

// ErrSimulatedFailure is returned when the simulated channel rolls a failure.
var ErrSimulatedFailure = errors.New("simulated delivery failure")

// SimulatedChannel stands in for a real provider: it waits a fixed latency
// and fails a configurable fraction of deliveries.
type SimulatedChannel struct {
	name        string
	latency     time.Duration
	failureRate float64

	mu   sync.Mutex
	rng  *rand.Rand
	sent []Result
}

func NewSimulatedChannel(name string, latency time.Duration, failureRate float64, seed int64) *SimulatedChannel {
	if name == "" {
		name = models.ChannelSim
	}
	return &SimulatedChannel{
		name:        name,
		latency:     latency,
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (s *SimulatedChannel) Name() string { return s.name }

func (s *SimulatedChannel) Validate(recipient string) error {
	if recipient == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRecipient)
	}
	return nil
}

func (s *SimulatedChannel) Format(message string, opts Options) string {
	if opts.Subject == "" {
		return message
	}
	return opts.Subject + ": " + message
}

func (s *SimulatedChannel) Deliver(ctx context.Context, recipient, body string, _ Options) (Result, error) {
	if err := wait(ctx, s.latency); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failureRate > 0 && s.rng.Float64() < s.failureRate {
		return Result{}, ErrSimulatedFailure
	}
	r := Result{
		MessageID: "sim-" + uuid.NewString(),
		Channel:   s.name,
		Recipient: recipient,
		SentAt:    time.Now(),
	}
	s.sent = append(s.sent, r)
	return r, nil
}

// Sent returns the deliveries that succeeded, oldest first.
func (s *SimulatedChannel) Sent() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result(nil), s.sent...)
}
