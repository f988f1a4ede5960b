// Package eventbus is an in-process publish/subscribe bus with prioritized
// listeners, once-listeners, per-listener failure isolation and optional
// concurrent dispatch with per-listener timeouts.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTimeout      = 5 * time.Second
	DefaultHistoryLimit = 100
)

// Event is a published message. It only lives for the dispatch and in the
// bounded history.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler is a listener callback. The returned value is reported in the
// listener's DispatchResult.
type Handler func(ctx context.Context, e Event) (any, error)

type SubscribeOptions struct {
	Priority int
	Once     bool
}

type PublishOptions struct {
	Async   bool
	Timeout time.Duration
}

// DispatchResult is the outcome of invoking one listener.
type DispatchResult struct {
	ListenerID string `json:"listener_id"`
	Priority   int    `json:"priority"`
	Success    bool   `json:"success"`
	Value      any    `json:"value,omitempty"`
	Error      string `json:"error,omitempty"`
	Err        error  `json:"-"`
}

// ErrListenerTimeout is reported for async listeners that did not settle in time.
var ErrListenerTimeout = errors.New("listener timed out")

type listener struct {
	id       string
	seq      uint64
	handler  Handler
	priority int
	once     bool
}

// registry is the per-type arena of listeners: ordered for dispatch and
// indexed by id for removal.
type registry struct {
	ordered []*listener
	byID    map[string]*listener
}

func (r *registry) insert(l *listener) {
	r.byID[l.id] = l
	r.ordered = append(r.ordered, l)
	sort.SliceStable(r.ordered, func(i, j int) bool {
		if r.ordered[i].priority != r.ordered[j].priority {
			return r.ordered[i].priority > r.ordered[j].priority
		}
		return r.ordered[i].seq < r.ordered[j].seq
	})
}

func (r *registry) remove(id string) bool {
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	kept := r.ordered[:0]
	for _, l := range r.ordered {
		if l.id != id {
			kept = append(kept, l)
		}
	}
	for i := len(kept); i < len(r.ordered); i++ {
		r.ordered[i] = nil
	}
	r.ordered = kept
	return true
}

// Observer is notified after every publish with the full result slice.
type Observer func(eventType string, results []DispatchResult)

type Option func(*Bus)

func WithHistoryLimit(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.historyLimit = n
		}
	}
}

func WithDefaultTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.defaultTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

func WithObserver(o Observer) Option {
	return func(b *Bus) { b.observers = append(b.observers, o) }
}

type Bus struct {
	mu             sync.Mutex
	types          map[string]*registry
	history        []Event
	historyLimit   int
	seq            uint64
	defaultTimeout time.Duration
	now            func() time.Time
	observers      []Observer
	logger         *zap.Logger
}

func New(logger *zap.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		types:          make(map[string]*registry),
		historyLimit:   DefaultHistoryLimit,
		defaultTimeout: DefaultTimeout,
		now:            time.Now,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for eventType and returns a function removing it.
// The returned function is safe to call more than once.
func (b *Bus) Subscribe(eventType string, h Handler, opts SubscribeOptions) func() {
	b.mu.Lock()
	b.seq++
	l := &listener{
		id:       uuid.NewString(),
		seq:      b.seq,
		handler:  h,
		priority: opts.Priority,
		once:     opts.Once,
	}
	reg, ok := b.types[eventType]
	if !ok {
		reg = &registry{byID: make(map[string]*listener)}
		b.types[eventType] = reg
	}
	reg.insert(l)
	b.mu.Unlock()

	b.logger.Debug("listener subscribed",
		zap.String("event", eventType),
		zap.String("listener_id", l.id),
		zap.Int("priority", l.priority),
		zap.Bool("once", l.once),
	)

	return func() { b.unsubscribe(eventType, l.id) }
}

func (b *Bus) unsubscribe(eventType, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	reg, ok := b.types[eventType]
	if !ok {
		return
	}
	if reg.remove(id) && len(reg.ordered) == 0 {
		delete(b.types, eventType)
	}
}

// Publish dispatches payload to every listener of eventType and returns one
// result per listener, in dispatch order. It never fails: listener errors,
// panics and timeouts are reported in the results.
//
// Listeners are snapshotted when Publish starts. Once-listeners are claimed
// by the snapshot, so concurrent publishes never run the same once-listener
// twice.
func (b *Bus) Publish(ctx context.Context, eventType string, payload any, opts PublishOptions) []DispatchResult {
	if ctx == nil {
		ctx = context.Background()
	}
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: b.now(),
	}

	listeners := b.snapshot(event)
	if len(listeners) == 0 {
		b.notify(eventType, nil)
		return []DispatchResult{}
	}

	var results []DispatchResult
	if opts.Async {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = b.defaultTimeout
		}
		results = b.dispatchAsync(ctx, event, listeners, timeout)
	} else {
		results = b.dispatchSync(ctx, event, listeners)
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
			b.logger.Warn("listener failed",
				zap.String("event", eventType),
				zap.String("event_id", event.ID),
				zap.String("listener_id", r.ListenerID),
				zap.Error(r.Err),
			)
		}
	}
	b.logger.Debug("event published",
		zap.String("event", eventType),
		zap.String("event_id", event.ID),
		zap.Int("listeners", len(results)),
		zap.Int("failed", failed),
		zap.Bool("async", opts.Async),
	)

	b.notify(eventType, results)
	return results
}

func (b *Bus) snapshot(event Event) []*listener {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.history = append(b.history, event)
	if over := len(b.history) - b.historyLimit; over > 0 {
		b.history = append([]Event(nil), b.history[over:]...)
	}

	reg, ok := b.types[event.Type]
	if !ok {
		return nil
	}
	out := make([]*listener, len(reg.ordered))
	copy(out, reg.ordered)
	for _, l := range out {
		if l.once {
			reg.remove(l.id)
		}
	}
	if len(reg.ordered) == 0 {
		delete(b.types, event.Type)
	}
	return out
}

func (b *Bus) dispatchSync(ctx context.Context, event Event, listeners []*listener) []DispatchResult {
	results := make([]DispatchResult, len(listeners))
	for i, l := range listeners {
		value, err := invoke(ctx, l, event)
		results[i] = newResult(l, value, err)
	}
	return results
}

type outcome struct {
	value any
	err   error
}

func (b *Bus) dispatchAsync(ctx context.Context, event Event, listeners []*listener, timeout time.Duration) []DispatchResult {
	results := make([]DispatchResult, len(listeners))

	var wg sync.WaitGroup
	for i, l := range listeners {
		wg.Add(1)
		go func(i int, l *listener) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan outcome, 1)
			go func() {
				value, err := invoke(callCtx, l, event)
				done <- outcome{value: value, err: err}
			}()

			var o outcome
			select {
			case o = <-done:
			case <-callCtx.Done():
				o.err = callCtx.Err()
			}
			// A listener that returns its own expired ctx error timed out too.
			if o.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && errors.Is(o.err, context.DeadlineExceeded) {
				o.value, o.err = nil, fmt.Errorf("%w after %s", ErrListenerTimeout, timeout)
			}
			results[i] = newResult(l, o.value, o.err)
		}(i, l)
	}
	wg.Wait()
	return results
}

func invoke(ctx context.Context, l *listener, event Event) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return l.handler(ctx, event)
}

func newResult(l *listener, value any, err error) DispatchResult {
	r := DispatchResult{
		ListenerID: l.id,
		Priority:   l.priority,
		Success:    err == nil,
		Value:      value,
		Err:        err,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

func (b *Bus) notify(eventType string, results []DispatchResult) {
	for _, o := range b.observers {
		o(eventType, results)
	}
}

// ListenerCount returns the number of listeners registered for eventType.
func (b *Bus) ListenerCount(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if reg, ok := b.types[eventType]; ok {
		return len(reg.ordered)
	}
	return 0
}

// EventTypes returns the event types that currently have listeners.
func (b *Bus) EventTypes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.types))
	for t := range b.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// History returns the retained events, oldest first. A non-empty eventType
// filters by type; limit <= 0 returns everything retained.
func (b *Bus) History(eventType string, limit int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Event, 0, len(b.history))
	for _, e := range b.history {
		if eventType == "" || e.Type == eventType {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (b *Bus) ClearHistory() {
	b.mu.Lock()
	b.history = nil
	b.mu.Unlock()
}

// Clear removes every listener and the history.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.types = make(map[string]*registry)
	b.history = nil
	b.mu.Unlock()
}
