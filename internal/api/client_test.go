package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"predictdash/internal/apperr"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *atomic.Int64) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	var authHits atomic.Int64
	c := New(Options{
		BaseURL:        srv.URL,
		Token:          "tok",
		Transport:      srv.Client().Transport,
		OnUnauthorized: func() { authHits.Add(1) },
	})
	return c, &authHits
}

func TestClientSendsCredentialAndRequestID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Admin-Token") != "tok" {
			http.Error(w, `{"error":"no token"}`, http.StatusUnauthorized)
			return
		}
		if r.Header.Get("X-Request-Id") == "" {
			http.Error(w, `{"error":"no id"}`, http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(Preview{Mode: "live", Markets: []PreviewMarket{{Market: "1x2"}}})
	})
	trace := &Trace{}
	p, err := c.Preview(WithTrace(context.Background(), trace), 42)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if p.Mode != "live" || len(p.Markets) != 1 || !p.Markets[0].Ready() {
		t.Fatalf("unexpected preview %+v", p)
	}
	if snap := trace.Snapshot(); snap.RequestID == "" || snap.Status != 200 {
		t.Fatalf("trace not filled: %+v", snap)
	}
}

func TestClient403IsAuthErrorAndFiresHook(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := c.History(context.Background(), 42, 10)
	if !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected unauthorized hook once, got %d", hits.Load())
	}
}

func TestClientServerErrorIsTransient(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"scoring backend down"}`)
	})
	_, err := c.Publish(context.Background(), PublishRequest{OwnerID: 42})
	var te *apperr.TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransientError, got %v", err)
	}
	if te.Status != 500 || te.Err.Error() != "scoring backend down" {
		t.Fatalf("unexpected transient error %+v", te)
	}
	if hits.Load() != 0 {
		t.Fatalf("500 must not trigger logout")
	}
}

func TestClientCancelledIsSilentKind(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Preview(ctx, 7)
		done <- err
	}()
	cancel()
	err := <-done
	if apperr.Classify(err) != apperr.KindCancelled {
		t.Fatalf("expected cancelled kind, got %v (%v)", apperr.Classify(err), err)
	}
}

func TestListPanelTotalCount(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/panels/operations" || r.URL.Query().Get("page") != "1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set(TotalCountHeader, "3")
		_, _ = io.WriteString(w, `[{"id":1},{"id":2}]`)
	})
	p, err := c.ListPanel(context.Background(), "operations", 1, 2)
	if err != nil {
		t.Fatalf("ListPanel: %v", err)
	}
	if p.Total != 3 || len(p.Items) != 2 || !p.HasMore() {
		t.Fatalf("unexpected page %+v hasMore=%v", p, p.HasMore())
	}
}

func TestPageHasMoreWithoutHeader(t *testing.T) {
	full := Page{Page: 1, Limit: 2, Items: make([]json.RawMessage, 2), Total: -1}
	short := Page{Page: 1, Limit: 2, Items: make([]json.RawMessage, 1), Total: -1}
	last := Page{Page: 2, Limit: 2, Items: make([]json.RawMessage, 2), Total: 4}
	if !full.HasMore() || short.HasMore() || last.HasMore() {
		t.Fatalf("unexpected HasMore: full=%v short=%v last=%v", full.HasMore(), short.HasMore(), last.HasMore())
	}
}
