package coord

import (
	"sync"
	"time"

	"predictdash/internal/infra/clock"
)

// Level is the severity of an operator notification.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notification is one operator-visible message. Key names the operation or
// control it belongs to.
type Notification struct {
	Level Level
	Key   string
	Text  string
	At    time.Time
}

// Notifier is the notification channel.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}

// Toasts keeps recent notifications for display until they expire.
type Toasts struct {
	mu    sync.Mutex
	clock clock.Clock
	ttl   time.Duration
	max   int
	items []Notification
}

// NewToasts keeps at most max notifications, each visible for ttl.
func NewToasts(c clock.Clock, ttl time.Duration, max int) *Toasts {
	if max <= 0 {
		max = 3
	}
	if ttl <= 0 {
		ttl = 4 * time.Second
	}
	return &Toasts{clock: clock.OrReal(c), ttl: ttl, max: max}
}

func (t *Toasts) Notify(n Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n.At.IsZero() {
		n.At = t.clock.Now()
	}
	t.items = append(t.items, n)
	if len(t.items) > t.max {
		t.items = t.items[len(t.items)-t.max:]
	}
}

// Active returns the notifications that have not expired, oldest first.
func (t *Toasts) Active() []Notification {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	kept := t.items[:0]
	for _, n := range t.items {
		if now.Sub(n.At) < t.ttl {
			kept = append(kept, n)
		}
	}
	t.items = kept
	return append([]Notification(nil), kept...)
}

// Clear drops every notification.
func (t *Toasts) Clear() {
	t.mu.Lock()
	t.items = nil
	t.mu.Unlock()
}
