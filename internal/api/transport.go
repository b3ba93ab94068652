package api

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"predictdash/internal/infra/clock"
)

// Limit defines a simple rate limit: RPS with a burst capacity.
type Limit struct {
	RPS   float64
	Burst int
}

// TransportOptions configures the rate-limited transport.
type TransportOptions struct {
	// RetryMax bounds retries of idempotent requests (GET/HEAD) on 429/5xx
	// and transient network errors. Writes are never retried: a publish is
	// re-triggered by the operator, not by the transport.
	RetryMax    int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	JitterFn    func(base time.Duration, attempt int) time.Duration
	Clock       clock.Clock
	Metrics     *Metrics
	Limit       Limit
}

// DefaultTransportOptions returns defaults for the dashboard API.
func DefaultTransportOptions() TransportOptions {
	return TransportOptions{
		RetryMax:    2,
		BackoffBase: 250 * time.Millisecond,
		BackoffCap:  5 * time.Second,
		Clock:       clock.Real(),
		JitterFn: func(base time.Duration, _ int) time.Duration {
			if base <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(base.Nanoseconds()))
		},
		Metrics: NewMetrics(),
		Limit:   Limit{RPS: 10, Burst: 10},
	}
}

// tokenBucket is a simple per-host rate limiter with fractional tokens.
type tokenBucket struct {
	mu     sync.Mutex
	rps    float64
	burst  float64
	tokens float64
	last   time.Time
	clock  clock.Clock
}

func newTokenBucket(lim Limit, c clock.Clock) *tokenBucket {
	burst := float64(max(1, lim.Burst))
	rps := lim.RPS
	if rps <= 0 {
		rps = 10
	}
	return &tokenBucket{rps: rps, burst: burst, tokens: burst, last: c.Now(), clock: c}
}

func (tb *tokenBucket) refillLocked(now time.Time) {
	delta := now.Sub(tb.last).Seconds() * tb.rps
	if delta > 0 {
		tb.tokens = math.Min(tb.burst, tb.tokens+delta)
		tb.last = now
	}
}

// Wait blocks until a token is available or ctx is done.
func (tb *tokenBucket) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tb.mu.Lock()
		tb.refillLocked(tb.clock.Now())
		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}
		need := 1 - tb.tokens
		wait := time.Duration((need / tb.rps) * float64(time.Second))
		tb.mu.Unlock()
		if wait < 5*time.Millisecond {
			wait = 5 * time.Millisecond
		}
		if err := clock.SleepContext(ctx, tb.clock, wait); err != nil {
			return err
		}
	}
}

// LimitedTransport wraps a base RoundTripper with per-host rate limiting,
// bounded retries of idempotent requests and request metrics.
type LimitedTransport struct {
	Base     http.RoundTripper
	Opts     TransportOptions
	limMu    sync.Mutex
	limiters map[string]*tokenBucket
}

// NewLimitedTransport builds a transport from opts.
func NewLimitedTransport(opts TransportOptions) *LimitedTransport {
	return &LimitedTransport{Opts: opts, limiters: make(map[string]*tokenBucket)}
}

func (t *LimitedTransport) limiter(host string) *tokenBucket {
	if host == "" {
		host = "_default_"
	}
	t.limMu.Lock()
	defer t.limMu.Unlock()
	if tb, ok := t.limiters[host]; ok {
		return tb
	}
	tb := newTokenBucket(t.Opts.Limit, t.clock())
	t.limiters[host] = tb
	return tb
}

func (t *LimitedTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *LimitedTransport) clock() clock.Clock { return clock.OrReal(t.Opts.Clock) }

func (t *LimitedTransport) jitter(base time.Duration, attempt int) time.Duration {
	if t.Opts.JitterFn != nil {
		return t.Opts.JitterFn(base, attempt)
	}
	return 0
}

func idempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func (t *LimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if t.Opts.Metrics != nil {
		t.Opts.Metrics.IncRequest(req.Method)
	}
	attempts := 1
	if idempotent(req.Method) {
		attempts = max(1, t.Opts.RetryMax+1)
	}
	lim := t.limiter(req.URL.Host)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			t.countCancel(err)
			return nil, err
		}
		resp, err := t.base().RoundTrip(req)
		if err != nil {
			if ctx.Err() != nil {
				t.countCancel(ctx.Err())
				return nil, ctx.Err()
			}
			if isTransientNetErr(err) && attempt < attempts-1 {
				lastErr = err
				t.noteRetry(ctx, 0)
				if err := t.sleepBackoff(ctx, attempt); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}
		if t.Opts.Metrics != nil {
			t.Opts.Metrics.IncStatus(resp.StatusCode)
		}
		if shouldRetryStatus(resp.StatusCode) && attempt < attempts-1 {
			resp.Body.Close()
			t.noteRetry(ctx, resp.StatusCode)
			if ra := parseRetryAfter(resp.Header.Get("Retry-After"), t.clock().Now()); ra > 0 {
				if err := t.sleep(ctx, minDur(ra, t.backoffCap())); err != nil {
					return nil, err
				}
				continue
			}
			if err := t.sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}
		return resp, nil
	}
	if lastErr == nil {
		lastErr = errors.New("max retries exceeded")
	}
	return nil, lastErr
}

func (t *LimitedTransport) countCancel(err error) {
	if t.Opts.Metrics != nil && errors.Is(err, context.Canceled) {
		t.Opts.Metrics.IncCancelled()
	}
}

func (t *LimitedTransport) noteRetry(ctx context.Context, status int) {
	if t.Opts.Metrics != nil {
		t.Opts.Metrics.IncRetry()
	}
	if tr := traceFrom(ctx); tr != nil {
		tr.addRetry(status)
	}
}

func (t *LimitedTransport) backoffCap() time.Duration {
	if t.Opts.BackoffCap <= 0 {
		return 5 * time.Second
	}
	return t.Opts.BackoffCap
}

func (t *LimitedTransport) sleepBackoff(ctx context.Context, attempt int) error {
	base := t.Opts.BackoffBase
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	delay := minDur(time.Duration(float64(base)*math.Pow(2, float64(attempt))), t.backoffCap())
	return t.sleep(ctx, minDur(delay+t.jitter(delay, attempt), t.backoffCap()))
}

func (t *LimitedTransport) sleep(ctx context.Context, d time.Duration) error {
	if err := clock.SleepContext(ctx, t.clock(), d); err != nil {
		t.countCancel(err)
		return err
	}
	if t.Opts.Metrics != nil {
		t.Opts.Metrics.AddBackoff(d)
	}
	return nil
}

func isTransientNetErr(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset")
}

func shouldRetryStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

func parseRetryAfter(h string, now time.Time) time.Duration {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(h); err == nil {
		if d := when.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
