package api

import (
	"context"
	"sync"
)

type traceKey struct{}

// TraceInfo is the per-call attribution: the request id sent as
// X-Request-Id, the final status and retry counts.
type TraceInfo struct {
	RequestID string
	Status    int
	Retries   int64
	Status429 int64
	Status5xx int64
}

// Trace collects a TraceInfo while the client and transport run a call.
type Trace struct {
	mu   sync.Mutex
	info TraceInfo
}

// WithTrace attaches tr to ctx so a single call can be attributed.
func WithTrace(ctx context.Context, tr *Trace) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey{}, tr)
}

func traceFrom(ctx context.Context) *Trace {
	if ctx == nil {
		return nil
	}
	tr, _ := ctx.Value(traceKey{}).(*Trace)
	return tr
}

func (tr *Trace) addRetry(status int) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.info.Retries++
	switch {
	case status == 429:
		tr.info.Status429++
	case status >= 500:
		tr.info.Status5xx++
	}
}

func (tr *Trace) set(requestID string, status int) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if requestID != "" {
		tr.info.RequestID = requestID
	}
	if status != 0 {
		tr.info.Status = status
	}
}

// Snapshot returns a copy safe to read while the call is still running.
func (tr *Trace) Snapshot() TraceInfo {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.info
}
