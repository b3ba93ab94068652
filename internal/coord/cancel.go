package coord

import (
	"context"
	"sync"
)

// Navigator owns one cancellation signal per navigation target. Beginning a
// new navigation cancels the previous target's signal. Cancellation is
// advisory: callers observe it through the returned context and treat the
// resulting apperr.ErrCancelled as a silent outcome.
type Navigator struct {
	mu     sync.Mutex
	root   context.Context
	target string
	ctx    context.Context
	cancel context.CancelFunc
}

// NewNavigator derives all navigation signals from parent.
func NewNavigator(parent context.Context) *Navigator {
	if parent == nil {
		parent = context.Background()
	}
	return &Navigator{root: parent}
}

// BeginNavigation cancels the current target (if any) and returns a fresh
// signal for target.
func (n *Navigator) BeginNavigation(target string) context.Context {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		n.cancel()
	}
	n.target = target
	n.ctx, n.cancel = context.WithCancel(n.root)
	return n.ctx
}

// Current returns the active target and its signal. With no navigation in
// progress it returns an already-cancelled context.
func (n *Navigator) Current() (string, context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ctx == nil {
		ctx, cancel := context.WithCancel(n.root)
		cancel()
		return "", ctx
	}
	return n.target, n.ctx
}

// Stop cancels the active target. A later BeginNavigation starts fresh.
func (n *Navigator) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		n.cancel()
	}
	n.target = ""
	n.ctx, n.cancel = nil, nil
}

// Bind returns a context cancelled when either ctx or signal is done.
func Bind(ctx, signal context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	out, cancel := context.WithCancel(ctx)
	if signal == nil {
		return out, cancel
	}
	stop := context.AfterFunc(signal, cancel)
	return out, func() {
		stop()
		cancel()
	}
}
