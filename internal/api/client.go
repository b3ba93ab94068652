// Package api is the client for the remote prediction/publishing service.
//
// Every failure is translated into the apperr taxonomy: a 403 becomes
// apperr.ErrAuth (and fires the unauthorized hook), an aborted context
// becomes apperr.ErrCancelled, anything else an *apperr.TransientError.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"predictdash/internal/apperr"
	"predictdash/internal/infra/logx"
)

// TotalCountHeader carries the total item count on list endpoints.
const TotalCountHeader = "X-Total-Count"

// Options configures a Client.
type Options struct {
	BaseURL     string
	Token       string
	AdminHeader string
	Transport   http.RoundTripper
	Timeout     time.Duration
	Metrics     *Metrics
	// OnUnauthorized runs on every 403, regardless of which caller issued
	// the request. The session manager hooks its logout here.
	OnUnauthorized func()
}

// Client talks JSON over HTTP to the remote service.
type Client struct {
	base    string
	header  string
	http    *http.Client
	metrics *Metrics

	mu     sync.RWMutex
	token  string
	onAuth func()
}

// New builds a client. A nil Transport gets a LimitedTransport with defaults.
func New(opts Options) *Client {
	tr := opts.Transport
	m := opts.Metrics
	if tr == nil {
		to := DefaultTransportOptions()
		if m != nil {
			to.Metrics = m
		}
		m = to.Metrics
		tr = NewLimitedTransport(to)
	}
	header := opts.AdminHeader
	if header == "" {
		header = "X-Admin-Token"
	}
	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		header:  header,
		http:    &http.Client{Transport: tr, Timeout: opts.Timeout},
		metrics: m,
		token:   opts.Token,
		onAuth:  opts.OnUnauthorized,
	}
}

// Metrics returns the transport counters, or nil when a custom transport
// without metrics was supplied.
func (c *Client) Metrics() *Metrics { return c.metrics }

// SetToken swaps the admin credential.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	logx.RegisterSecret(token)
}

// OnUnauthorized replaces the 403 hook.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	c.onAuth = fn
	c.mu.Unlock()
}

func (c *Client) credentials() (string, func()) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.onAuth
}

// ListPanel fetches one page of a dashboard section.
func (c *Client) ListPanel(ctx context.Context, section string, page, limit int) (Page, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var items []json.RawMessage
	hdr, err := c.do(ctx, "panels."+section, http.MethodGet, "/api/panels/"+url.PathEscape(section), q, nil, &items)
	if err != nil {
		return Page{}, err
	}
	total := -1
	if v := strings.TrimSpace(hdr.Get(TotalCountHeader)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			total = n
		}
	}
	return Page{Section: section, Page: page, Limit: limit, Items: items, Total: total}, nil
}

// Preview fetches the publish preview for owner.
func (c *Client) Preview(ctx context.Context, owner int64) (Preview, error) {
	var out Preview
	_, err := c.do(ctx, "publish.preview", http.MethodGet, fmt.Sprintf("/api/publish/%d/preview", owner), nil, nil, &out)
	return out, err
}

// PostPreview fetches the rich rendered preview for owner and variant.
func (c *Client) PostPreview(ctx context.Context, owner int64, variant string) (PostPreview, error) {
	q := url.Values{}
	if variant != "" {
		q.Set("variant", variant)
	}
	var out PostPreview
	_, err := c.do(ctx, "publish.post_preview", http.MethodGet, fmt.Sprintf("/api/publish/%d/post-preview", owner), q, nil, &out)
	return out, err
}

// Publish submits a publish request.
func (c *Client) Publish(ctx context.Context, req PublishRequest) (PublishResponse, error) {
	var out PublishResponse
	_, err := c.do(ctx, "publish.submit", http.MethodPost, "/api/publish", nil, req, &out)
	return out, err
}

// History fetches the most recent publish attempts for owner.
func (c *Client) History(ctx context.Context, owner int64, limit int) ([]HistoryRow, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []HistoryRow
	_, err := c.do(ctx, "publish.history", http.MethodGet, fmt.Sprintf("/api/publish/%d/history", owner), q, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, body, out any) (http.Header, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return nil, cancelled(op, err)
	}
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", op, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	token, onAuth := c.credentials()
	rid := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", rid)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(c.header, token)
	}
	tr := traceFrom(ctx)
	if tr != nil {
		tr.set(rid, 0)
	}

	res, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
			logx.Debugw("request cancelled", "op", op, "request_id", rid)
			return nil, cancelled(op, err)
		}
		return nil, apperr.Transient(op, 0, err)
	}
	defer res.Body.Close()
	if tr != nil {
		tr.set("", res.StatusCode)
	}

	if res.StatusCode == http.StatusForbidden {
		logx.Warnw("credential rejected", "op", op, "request_id", rid)
		if onAuth != nil {
			onAuth()
		}
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrAuth)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, apperr.Transient(op, res.StatusCode, errors.New(readErrorBody(res)))
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, cancelled(op, err)
			}
			return nil, apperr.Transient(op, res.StatusCode, fmt.Errorf("decode response: %w", err))
		}
	}
	return res.Header, nil
}

func cancelled(op string, cause error) error {
	return fmt.Errorf("%s: %w (%v)", op, apperr.ErrCancelled, cause)
}

func readErrorBody(res *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	var eb errorBody
	if json.Unmarshal(b, &eb) == nil && eb.Error != "" {
		return eb.Error
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		return s
	}
	return res.Status
}
