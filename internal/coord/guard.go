package coord

import (
	"context"
	"errors"
	"sync"
	"time"

	"predictdash/internal/apperr"
	"predictdash/internal/infra/clock"
	"predictdash/internal/infra/logx"
)

// ErrBusy is returned by Run and Do when the key is already held. The
// operation was not invoked.
var ErrBusy = errors.New("operation already in progress")

// DefaultBusyCooldown spaces repeated busy notifications for one key.
const DefaultBusyCooldown = 1100 * time.Millisecond

const compactLen = 140

// GuardOptions configures a Guard.
type GuardOptions struct {
	Cooldown time.Duration
	Clock    clock.Clock
	Notifier Notifier
}

type operationLock struct {
	held             bool
	lastBusyNotifyAt time.Time
}

// Guard is a set of named mutual-exclusion locks with scoped release and
// throttled contention notifications.
type Guard struct {
	mu        sync.Mutex
	locks     map[string]*operationLock
	observers []func(key string, held bool)
	cooldown  time.Duration
	clock     clock.Clock
	notifier  Notifier
}

func NewGuard(opts GuardOptions) *Guard {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultBusyCooldown
	}
	var n Notifier = nopNotifier{}
	if opts.Notifier != nil {
		n = opts.Notifier
	}
	return &Guard{
		locks:    make(map[string]*operationLock),
		cooldown: opts.Cooldown,
		clock:    clock.OrReal(opts.Clock),
		notifier: n,
	}
}

// OnChange registers fn to be told when a key becomes held or released.
// The UI uses it to disable and re-enable the controls bound to a key.
func (g *Guard) OnChange(fn func(key string, held bool)) {
	g.mu.Lock()
	g.observers = append(g.observers, fn)
	g.mu.Unlock()
}

func (g *Guard) emit(key string, held bool) {
	g.mu.Lock()
	obs := append([]func(string, bool){}, g.observers...)
	g.mu.Unlock()
	for _, fn := range obs {
		fn(key, held)
	}
}

// TryAcquire marks key held and returns true, or returns false without side
// effects when key is already held.
func (g *Guard) TryAcquire(key string) bool {
	g.mu.Lock()
	l, ok := g.locks[key]
	if !ok {
		l = &operationLock{}
		g.locks[key] = l
	}
	if l.held {
		g.mu.Unlock()
		return false
	}
	l.held = true
	g.mu.Unlock()
	g.emit(key, true)
	return true
}

// Release clears key. Releasing a key that is not held is a no-op.
func (g *Guard) Release(key string) {
	g.mu.Lock()
	l, ok := g.locks[key]
	if !ok || !l.held {
		g.mu.Unlock()
		return
	}
	l.held = false
	g.mu.Unlock()
	g.emit(key, false)
}

// Held reports whether key is currently held.
func (g *Guard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[key]
	return ok && l.held
}

// Run invokes fn while holding key. When key is already held it emits
// busyMessage (at most once per cooldown window) and returns ErrBusy
// without calling fn. The key is released on every exit path of fn,
// including a panic, which is re-raised after release. Errors returned by
// fn are reported through Report and then returned.
func (g *Guard) Run(ctx context.Context, key, busyMessage string, fn func(context.Context) error) (ran bool, err error) {
	if !g.TryAcquire(key) {
		g.notifyBusy(key, busyMessage)
		return false, ErrBusy
	}
	defer g.Release(key)
	err = fn(ctx)
	g.Report(key, err)
	return true, err
}

// Do is Run for operations that produce a value.
func Do[T any](ctx context.Context, g *Guard, key, busyMessage string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	_, err := g.Run(ctx, key, busyMessage, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}

func (g *Guard) notifyBusy(key, msg string) {
	if msg == "" {
		return
	}
	g.mu.Lock()
	l := g.locks[key]
	now := g.clock.Now()
	if !l.lastBusyNotifyAt.IsZero() && now.Sub(l.lastBusyNotifyAt) < g.cooldown {
		g.mu.Unlock()
		return
	}
	l.lastBusyNotifyAt = now
	g.mu.Unlock()
	g.notifier.Notify(Notification{Level: LevelInfo, Key: key, Text: msg, At: now})
}

// Report converts a failed operation into at most one notification:
// cancellations are silent, credential rejections are left to the session
// reset, validation failures go to the control that triggered them and
// everything else becomes a compact error message.
func (g *Guard) Report(key string, err error) {
	if err == nil {
		return
	}
	switch apperr.Classify(err) {
	case apperr.KindCancelled:
		logx.Debugw("operation cancelled", "key", key)
	case apperr.KindAuth:
		logx.Infow("operation rejected: credential invalid", "key", key)
	case apperr.KindValidation:
		g.notifier.Notify(Notification{Level: LevelWarn, Key: key, Text: apperr.Compact(err, compactLen), At: g.clock.Now()})
	default:
		logx.Warnw("operation failed", "key", key, "err", err)
		g.notifier.Notify(Notification{Level: LevelError, Key: key, Text: apperr.Compact(err, compactLen), At: g.clock.Now()})
	}
}
