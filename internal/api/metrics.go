package api

import (
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics counts transport activity for the dashboard status line.
// All counters are atomic; a Metrics may be shared by several transports.
type Metrics struct {
	requests  atomic.Int64
	reads     atomic.Int64
	writes    atomic.Int64
	retries   atomic.Int64
	cancelled atomic.Int64
	backoff   atomic.Int64 // nanoseconds

	status2xx atomic.Int64
	status4xx atomic.Int64
	status403 atomic.Int64
	status429 atomic.Int64
	status5xx atomic.Int64
}

func NewMetrics() *Metrics { return &Metrics{} }

// IncRequest counts one outgoing request, split into reads and writes.
func (m *Metrics) IncRequest(method string) {
	m.requests.Add(1)
	if idempotent(method) {
		m.reads.Add(1)
	} else {
		m.writes.Add(1)
	}
}

func (m *Metrics) IncRetry()                  { m.retries.Add(1) }
func (m *Metrics) IncCancelled()              { m.cancelled.Add(1) }
func (m *Metrics) AddBackoff(d time.Duration) { m.backoff.Add(d.Nanoseconds()) }

// IncStatus counts a response into its status bucket. 403 and 429 are
// counted on their own and also as 4xx.
func (m *Metrics) IncStatus(code int) {
	switch {
	case code >= 200 && code < 300:
		m.status2xx.Add(1)
	case code >= 400 && code < 500:
		m.status4xx.Add(1)
		switch code {
		case http.StatusForbidden:
			m.status403.Add(1)
		case http.StatusTooManyRequests:
			m.status429.Add(1)
		}
	case code >= 500:
		m.status5xx.Add(1)
	}
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	TotalRequests  int64
	ReadRequests   int64
	WriteRequests  int64
	TotalRetries   int64
	TotalCancelled int64
	Backoff        time.Duration
	Status2xx      int64
	Status4xx      int64
	Status403      int64
	Status429      int64
	Status5xx      int64
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests:  m.requests.Load(),
		ReadRequests:   m.reads.Load(),
		WriteRequests:  m.writes.Load(),
		TotalRetries:   m.retries.Load(),
		TotalCancelled: m.cancelled.Load(),
		Backoff:        time.Duration(m.backoff.Load()),
		Status2xx:      m.status2xx.Load(),
		Status4xx:      m.status4xx.Load(),
		Status403:      m.status403.Load(),
		Status429:      m.status429.Load(),
		Status5xx:      m.status5xx.Load(),
	}
}
