package notifications

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultLimit    = 50
	DefaultDuration = 5 * time.Second
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Action struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

type Notification struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Recipient    string         `json:"recipient,omitempty"`
	OriginalType string         `json:"original_type,omitempty"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Data         map[string]any `json:"data,omitempty"`
	Priority     Priority       `json:"priority"`
	Persistent   bool           `json:"persistent"`
	Duration     time.Duration  `json:"duration"`
	Actions      []Action       `json:"actions,omitempty"`
	Read         bool           `json:"read"`
	Dismissed    bool           `json:"dismissed"`
	Timestamp    time.Time      `json:"timestamp"`
}

type PostOptions struct {
	// Recipient is the customer the notification belongs to. Notifications
	// without one are operator-facing.
	Recipient  string
	Title      string
	Message    string
	Priority   Priority
	Persistent bool
	Duration   time.Duration
	Actions    []Action
}

// VisibleTo reports whether recipient may see n. An empty recipient sees
// everything.
func (n Notification) VisibleTo(recipient string) bool {
	return recipient == "" || n.Recipient == recipient
}

type Handler func(n Notification)

type SubscribeOptions struct {
	Priority int
	// Filter suppresses delivery when it returns false.
	Filter func(n Notification) bool
}

// ListFilter selects notifications from the feed.
type ListFilter struct {
	// Recipient restricts the list to one customer's notifications. Empty
	// means every notification.
	Recipient        string
	Type             string
	UnreadOnly       bool
	IncludeDismissed bool
	Limit            int
}

// Timer is the handle of a scheduled auto-dismissal.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler func(d time.Duration, f func()) Timer

func realScheduler(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type subscriber struct {
	id       string
	seq      uint64
	typ      string
	priority int
	filter   func(Notification) bool
	handler  Handler
}

type entry struct {
	n     Notification
	timer Timer
}

type Option func(*Center)

func WithLimit(n int) Option {
	return func(c *Center) {
		if n > 0 {
			c.limit = n
		}
	}
}

func WithDefaultDuration(d time.Duration) Option {
	return func(c *Center) {
		if d > 0 {
			c.defaultDuration = d
		}
	}
}

func WithScheduler(s Scheduler) Option {
	return func(c *Center) { c.schedule = s }
}

func WithClock(now func() time.Time) Option {
	return func(c *Center) { c.now = now }
}

// Center is the notification feed. It owns the bounded notification list
// and the subscriber registry.
type Center struct {
	mu              sync.Mutex
	items           []*entry // newest first
	byID            map[string]*entry
	subs            map[string]*subscriber
	seq             uint64
	limit           int
	defaultDuration time.Duration
	schedule        Scheduler
	now             func() time.Time
	closed          bool
	logger          *zap.Logger
}

func New(logger *zap.Logger, opts ...Option) *Center {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Center{
		byID:            make(map[string]*entry),
		subs:            make(map[string]*subscriber),
		limit:           DefaultLimit,
		defaultDuration: DefaultDuration,
		schedule:        realScheduler,
		now:             time.Now,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers h for notifications of typ, or of every type when typ
// is "*". The returned function removes the subscription.
func (c *Center) Subscribe(typ string, h Handler, opts SubscribeOptions) func() {
	c.mu.Lock()
	c.seq++
	s := &subscriber{
		id:       uuid.NewString(),
		seq:      c.seq,
		typ:      typ,
		priority: opts.Priority,
		filter:   opts.Filter,
		handler:  h,
	}
	c.subs[s.id] = s
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, s.id)
		c.mu.Unlock()
	}
}

// Post adds a notification to the feed, delivers it to subscribers and
// returns its id.
func (c *Center) Post(typ string, data map[string]any, opts PostOptions) string {
	n := Notification{
		ID:         uuid.NewString(),
		Type:       typ,
		Recipient:  opts.Recipient,
		Title:      opts.Title,
		Message:    opts.Message,
		Data:       data,
		Priority:   opts.Priority,
		Persistent: opts.Persistent,
		Duration:   opts.Duration,
		Actions:    opts.Actions,
		Timestamp:  c.now(),
	}
	if n.Title == "" {
		n.Title = stringFrom(data, "title")
	}
	if n.Message == "" {
		n.Message = stringFrom(data, "message")
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	if n.Duration <= 0 {
		n.Duration = c.defaultDuration
	}

	e := &entry{n: n}

	c.mu.Lock()
	c.items = append([]*entry{e}, c.items...)
	c.byID[n.ID] = e
	var evicted []*entry
	if len(c.items) > c.limit {
		evicted = c.items[c.limit:]
		c.items = c.items[:c.limit:c.limit]
		for _, old := range evicted {
			delete(c.byID, old.n.ID)
		}
	}
	if !n.Persistent && !c.closed {
		id := n.ID
		e.timer = c.schedule(n.Duration, func() { c.Dismiss(id) })
	}
	c.mu.Unlock()

	for _, old := range evicted {
		if old.timer != nil {
			old.timer.Stop()
		}
	}

	c.logger.Debug("notification posted",
		zap.String("id", n.ID),
		zap.String("type", typ),
		zap.String("recipient", n.Recipient),
		zap.String("priority", string(n.Priority)),
		zap.Bool("persistent", n.Persistent),
	)

	c.deliver(n, typ)
	return n.ID
}

// Dismiss marks a notification dismissed and tells subscribers with a
// notification_dismissed event. It returns false for unknown ids. Dismissing
// twice is a no-op.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	e, ok := c.byID[id]
	if !ok {
		c.mu.Unlock()
		return false
	}
	if e.n.Dismissed {
		c.mu.Unlock()
		return true
	}
	e.n.Dismissed = true
	timer := e.timer
	e.timer = nil
	dismissed := e.n
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}

	dismissed.OriginalType = dismissed.Type
	dismissed.Type = models.NotificationDismissed
	c.deliver(dismissed, dismissed.OriginalType)
	return true
}

// MarkAsRead flags a notification read. It returns false for unknown ids.
func (c *Center) MarkAsRead(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[id]
	if !ok {
		return false
	}
	e.n.Read = true
	return true
}

func (c *Center) MarkAllAsRead() {
	c.MarkAllAsReadFor("")
}

// MarkAllAsReadFor flags every notification visible to recipient read.
func (c *Center) MarkAllAsReadFor(recipient string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.items {
		if e.n.VisibleTo(recipient) {
			e.n.Read = true
		}
	}
}

// Get returns a copy of the notification with id.
func (c *Center) Get(id string) (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[id]
	if !ok {
		return Notification{}, false
	}
	return e.n, true
}

// List returns notifications newest first.
func (c *Center) List(f ListFilter) []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Notification, 0, len(c.items))
	for _, e := range c.items {
		if !e.n.VisibleTo(f.Recipient) {
			continue
		}
		if f.Type != "" && e.n.Type != f.Type {
			continue
		}
		if f.UnreadOnly && e.n.Read {
			continue
		}
		if !f.IncludeDismissed && e.n.Dismissed {
			continue
		}
		out = append(out, e.n)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func (c *Center) UnreadCount() int {
	return c.UnreadCountFor("")
}

// UnreadCountFor counts unread, undismissed notifications visible to
// recipient.
func (c *Center) UnreadCountFor(recipient string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.items {
		if e.n.VisibleTo(recipient) && !e.n.Read && !e.n.Dismissed {
			n++
		}
	}
	return n
}

// Clear drops every notification without notifying subscribers.
func (c *Center) Clear() {
	c.mu.Lock()
	items := c.items
	c.items = nil
	c.byID = make(map[string]*entry)
	c.mu.Unlock()

	for _, e := range items {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
}

// Close stops pending auto-dismissals. Notifications posted afterwards are
// kept until dismissed explicitly.
func (c *Center) Close() {
	c.mu.Lock()
	c.closed = true
	var timers []Timer
	for _, e := range c.items {
		if e.timer != nil {
			timers = append(timers, e.timer)
			e.timer = nil
		}
	}
	c.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
}

func (c *Center) Success(title, message string) string {
	return c.Post(models.NotificationSuccess, nil, PostOptions{Title: title, Message: message})
}

func (c *Center) Error(title, message string) string {
	return c.Post(models.NotificationError, nil, PostOptions{Title: title, Message: message, Priority: PriorityHigh, Duration: 8 * time.Second})
}

func (c *Center) Warning(title, message string) string {
	return c.Post(models.NotificationWarning, nil, PostOptions{Title: title, Message: message, Priority: PriorityHigh})
}

func (c *Center) Info(title, message string) string {
	return c.Post(models.NotificationInfo, nil, PostOptions{Title: title, Message: message, Priority: PriorityLow})
}

// deliver hands n to subscribers of n.Type, of alsoType and of "*", merged in
// one priority order.
func (c *Center) deliver(n Notification, alsoType string) {
	c.mu.Lock()
	targets := make([]*subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		if s.typ == models.NotificationWildcardType || s.typ == n.Type || s.typ == alsoType {
			targets = append(targets, s)
		}
	}
	c.mu.Unlock()

	sort.Slice(targets, func(i, j int) bool {
		if targets[i].priority != targets[j].priority {
			return targets[i].priority > targets[j].priority
		}
		return targets[i].seq < targets[j].seq
	})

	for _, s := range targets {
		if s.filter != nil && !s.filter(n) {
			continue
		}
		c.call(s, n)
	}
}

func (c *Center) call(s *subscriber, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("notification subscriber panicked",
				zap.String("subscriber_id", s.id),
				zap.String("type", n.Type),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	s.handler(n)
}

func stringFrom(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
