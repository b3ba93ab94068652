package publish

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"predictdash/internal/api"
	"predictdash/internal/apperr"
	"predictdash/internal/coord"
	"predictdash/internal/infra/clock"
)

// previewStep scripts one preview call: it waits for gate (if any) and
// then fails with err (if any).
type previewStep struct {
	gate chan struct{}
	err  error
}

// fakeAPI serves canned payloads per owner. A gate, when set, holds the
// preview call for that owner until it is closed. Scripted steps are
// consumed one per preview call before the gate is consulted.
type fakeAPI struct {
	mu        sync.Mutex
	previews  map[int64]api.Preview
	gates     map[int64]chan struct{}
	steps     []previewStep
	publish   api.PublishResponse
	publishEr error
	historyEr error
	history   []api.HistoryRow

	previewCalls atomic.Int64
	publishCalls atomic.Int64
	historyCalls atomic.Int64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{previews: map[int64]api.Preview{}, gates: map[int64]chan struct{}{}}
}

func (f *fakeAPI) Preview(ctx context.Context, owner int64) (api.Preview, error) {
	f.previewCalls.Add(1)
	f.mu.Lock()
	gate := f.gates[owner]
	p := f.previews[owner]
	var stepErr error
	if len(f.steps) > 0 {
		gate, stepErr = f.steps[0].gate, f.steps[0].err
		f.steps = f.steps[1:]
	}
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if stepErr != nil {
		return api.Preview{}, stepErr
	}
	return p, nil
}

func (f *fakeAPI) PostPreview(ctx context.Context, owner int64, variant string) (api.PostPreview, error) {
	if variant == "broken" {
		return api.PostPreview{}, apperr.Transient("publish.post_preview", 500, errors.New("render failed"))
	}
	return api.PostPreview{Markets: []api.PostPreviewMarket{{Market: "1x2", Lang: "en", Title: "t"}}}, nil
}

func (f *fakeAPI) Publish(ctx context.Context, req api.PublishRequest) (api.PublishResponse, error) {
	f.publishCalls.Add(1)
	return f.publish, f.publishEr
}

func (f *fakeAPI) History(ctx context.Context, owner int64, limit int) ([]api.HistoryRow, error) {
	f.historyCalls.Add(1)
	return f.history, f.historyEr
}

type sink struct {
	mu  sync.Mutex
	got []coord.Notification
}

func (s *sink) Notify(n coord.Notification) {
	s.mu.Lock()
	s.got = append(s.got, n)
	s.mu.Unlock()
}

func (s *sink) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.got))
	for _, n := range s.got {
		out = append(out, n.Text)
	}
	return out
}

func newTestCoordinator(f *fakeAPI) (*Coordinator, *sink, *coord.SectionCache) {
	n := &sink{}
	fc := clock.NewFake()
	cache := coord.NewSectionCache(fc)
	c := New(Options{
		API:   f,
		Guard: coord.NewGuard(coord.GuardOptions{Clock: fc, Notifier: n}),
		Cache: cache,
	})
	return c, n, cache
}

func readyPreview(ready, blocked int) api.Preview {
	p := api.Preview{Mode: "live"}
	for i := 0; i < ready; i++ {
		p.Markets = append(p.Markets, api.PreviewMarket{Market: "ready"})
	}
	for i := 0; i < blocked; i++ {
		p.Markets = append(p.Markets, api.PreviewMarket{Market: "blocked", Reasons: []string{"odds stale"}})
	}
	return p
}

func TestStaleResponseSuppressed(t *testing.T) {
	f := newFakeAPI()
	f.previews[501] = readyPreview(5, 0)
	f.previews[777] = readyPreview(1, 2)
	gate := make(chan struct{})
	f.gates[501] = gate
	c, notes, _ := newTestCoordinator(f)

	if _, err := c.Open("501"); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- c.LoadPreview(context.Background()) }()
	for f.previewCalls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	if _, err := c.Open("777"); err != nil {
		t.Fatal(err)
	}
	if err := c.LoadPreview(context.Background()); err != nil {
		t.Fatalf("777 preview: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("stale preview should resolve silently, got %v", err)
	}

	s := c.Snapshot()
	if s.Owner != 777 || s.Preview.Ready != 1 || s.Preview.Total != 3 || s.Phase != PreviewReady {
		t.Fatalf("state = %+v", s)
	}
	if len(notes.texts()) != 0 {
		t.Fatalf("stale drop must not notify: %v", notes.texts())
	}
}

func TestOverlappingPreviewFailureKeepsGoodPreview(t *testing.T) {
	f := newFakeAPI()
	f.previews[501] = readyPreview(2, 1)
	c, _, _ := newTestCoordinator(f)
	if _, err := c.Open("501"); err != nil {
		t.Fatal(err)
	}
	if err := c.LoadPreview(context.Background()); err != nil {
		t.Fatal(err)
	}

	okGate, failGate := make(chan struct{}), make(chan struct{})
	f.mu.Lock()
	f.steps = []previewStep{
		{gate: okGate},
		{gate: failGate, err: apperr.Transient("publish.preview", 502, errors.New("bad gateway"))},
	}
	f.mu.Unlock()

	first := make(chan error, 1)
	go func() { first <- c.LoadPreview(context.Background()) }()
	for f.previewCalls.Load() < 2 {
		time.Sleep(time.Millisecond)
	}
	second := make(chan error, 1)
	go func() { second <- c.LoadPreview(context.Background()) }()
	for f.previewCalls.Load() < 3 {
		time.Sleep(time.Millisecond)
	}

	close(okGate)
	if err := <-first; err != nil {
		t.Fatalf("first load: %v", err)
	}
	close(failGate)
	if err := <-second; err == nil {
		t.Fatalf("second load should fail")
	}

	s := c.Snapshot()
	if s.Phase != PreviewReady || s.Preview.Ready != 2 {
		t.Fatalf("phase = %v, ready = %d", s.Phase, s.Preview.Ready)
	}
	f.publish = api.PublishResponse{Results: []api.PublishResultRow{{Market: "ready", Lang: "en", Status: api.StatusOK}}}
	if _, err := c.Submit(context.Background(), SubmitOptions{}); err != nil {
		t.Fatalf("submit after failed overlap: %v", err)
	}
	if f.publishCalls.Load() != 1 {
		t.Fatalf("publish calls = %d", f.publishCalls.Load())
	}
}

func TestOverlappingPreviewFailureFirst(t *testing.T) {
	f := newFakeAPI()
	f.previews[501] = readyPreview(1, 0)
	c, _, _ := newTestCoordinator(f)
	if _, err := c.Open("501"); err != nil {
		t.Fatal(err)
	}
	if err := c.LoadPreview(context.Background()); err != nil {
		t.Fatal(err)
	}

	okGate := make(chan struct{})
	f.mu.Lock()
	f.steps = []previewStep{
		{gate: okGate},
		{err: apperr.Transient("publish.preview", 502, errors.New("bad gateway"))},
	}
	f.mu.Unlock()

	first := make(chan error, 1)
	go func() { first <- c.LoadPreview(context.Background()) }()
	for f.previewCalls.Load() < 2 {
		time.Sleep(time.Millisecond)
	}
	if err := c.LoadPreview(context.Background()); err == nil {
		t.Fatalf("second load should fail")
	}
	if s := c.Snapshot(); s.Phase != PreviewReady || s.Preview.Ready != 1 {
		t.Fatalf("failure should fall back to the held preview, phase = %v", s.Phase)
	}
	close(okGate)
	if err := <-first; err != nil {
		t.Fatal(err)
	}
	if s := c.Snapshot(); s.Phase != PreviewReady {
		t.Fatalf("phase = %v", s.Phase)
	}
}

func TestRestingPhase(t *testing.T) {
	held := State{Preview: PreviewSummary{Loaded: true, Ready: 0, Total: 2}}
	cases := []struct {
		name  string
		state State
		prior Phase
		want  Phase
	}{
		{"resolved prior kept", held, PostPreviewReady, PostPreviewReady},
		{"settled kept", held, Settled, Settled},
		{"loading with blocked preview", held, PreviewLoading, PreviewBlocked},
		{"loading with ready preview", State{Preview: PreviewSummary{Loaded: true, Ready: 1}}, PreviewLoading, PreviewReady},
		{"loading without preview", State{}, PreviewLoading, Idle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.state.resting(tc.prior); got != tc.want {
				t.Fatalf("resting(%v) = %v, want %v", tc.prior, got, tc.want)
			}
		})
	}
}

func TestReservationConflictSettlesPartial(t *testing.T) {
	f := newFakeAPI()
	f.previews[42] = readyPreview(2, 1)
	f.publish = api.PublishResponse{ReservationLocked: true}
	c, _, cache := newTestCoordinator(f)
	cache.Set(HistoryCacheKey(42), "kept", time.Minute)

	c.Open("42")
	if err := c.LoadPreview(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := c.Snapshot().Preview

	rs, err := c.Submit(context.Background(), SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rs == nil || !rs.ReservationLocked {
		t.Fatalf("result = %+v", rs)
	}
	s := c.Snapshot()
	if s.Phase != Settled || s.Settlement != SettledPartial || s.SettleMessage != ReservationMessage {
		t.Fatalf("state = %+v", s)
	}
	if s.Preview.Ready != before.Ready || s.Preview.Total != before.Total {
		t.Fatalf("preview changed: %+v -> %+v", before, s.Preview)
	}
	if _, ok := cache.Get(HistoryCacheKey(42)); !ok {
		t.Fatalf("reservation conflict should not invalidate history")
	}
}

func TestSubmitNoReadyMarketsMakesNoCall(t *testing.T) {
	f := newFakeAPI()
	f.previews[42] = readyPreview(0, 3)
	c, notes, _ := newTestCoordinator(f)
	c.Open("42")
	c.LoadPreview(context.Background())
	if ph := c.Snapshot().Phase; ph != PreviewBlocked {
		t.Fatalf("phase = %v", ph)
	}

	_, err := c.Submit(context.Background(), SubmitOptions{})
	if !errors.Is(err, ErrNoReadyMarkets) {
		t.Fatalf("err = %v", err)
	}
	if f.publishCalls.Load() != 0 {
		t.Fatalf("publish called %d times", f.publishCalls.Load())
	}
	if got := notes.texts(); len(got) != 1 || got[0] != "no ready markets" {
		t.Fatalf("notifications = %v", got)
	}
	if c.Snapshot().Phase != PreviewBlocked {
		t.Fatalf("phase should be unchanged")
	}
}

func TestSubmitSettlesAndInvalidates(t *testing.T) {
	f := newFakeAPI()
	f.previews[42] = readyPreview(2, 0)
	f.publish = api.PublishResponse{Results: []api.PublishResultRow{
		row(api.StatusOK, nil, nil),
		row(api.StatusFailed, strp("odds moved"), nil),
	}}
	c, _, cache := newTestCoordinator(f)
	cache.Set("publishing:1", "page", time.Minute)
	cache.Set(HistoryCacheKey(42), "rows", time.Minute)
	cache.Set("operations:1", "page", time.Minute)

	c.Open("42")
	c.LoadPreview(context.Background())
	rs, err := c.Submit(context.Background(), SubmitOptions{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if rs.Settle() != SettledPartial || c.Snapshot().Settlement != SettledPartial {
		t.Fatalf("settlement = %v", rs.Settle())
	}
	if _, ok := cache.Get("publishing:1"); ok {
		t.Fatalf("publishing panel should be invalidated")
	}
	if _, ok := cache.Get(HistoryCacheKey(42)); ok {
		t.Fatalf("history should be invalidated")
	}
	if _, ok := cache.Get("operations:1"); !ok {
		t.Fatalf("unrelated section should be kept")
	}
}

func TestSubmitFailureKeepsLastGoodState(t *testing.T) {
	f := newFakeAPI()
	f.previews[42] = readyPreview(2, 0)
	f.publishEr = apperr.Transient("publish.submit", 502, errors.New("bad gateway"))
	c, notes, _ := newTestCoordinator(f)
	c.Open("42")
	c.LoadPreview(context.Background())

	_, err := c.Submit(context.Background(), SubmitOptions{})
	if apperr.Classify(err) != apperr.KindTransient {
		t.Fatalf("err = %v", err)
	}
	s := c.Snapshot()
	if s.Phase != PreviewReady || s.LastResult != nil || s.Preview.Ready != 2 {
		t.Fatalf("state = %+v", s)
	}
	if len(notes.texts()) != 1 {
		t.Fatalf("expected one notification, got %v", notes.texts())
	}
	if !c.opts.Guard.TryAcquire(PublishKey(42)) {
		t.Fatalf("publish lock should be released")
	}
}

func TestSubmitBusyWhileHeld(t *testing.T) {
	f := newFakeAPI()
	f.previews[42] = readyPreview(1, 0)
	c, notes, _ := newTestCoordinator(f)
	c.Open("42")
	c.LoadPreview(context.Background())
	c.opts.Guard.TryAcquire(PublishKey(42))

	_, err := c.Submit(context.Background(), SubmitOptions{})
	if !errors.Is(err, coord.ErrBusy) {
		t.Fatalf("err = %v", err)
	}
	if f.publishCalls.Load() != 0 || len(notes.texts()) != 1 {
		t.Fatalf("calls=%d notes=%v", f.publishCalls.Load(), notes.texts())
	}
}

func TestOpenRejectsInvalidOwner(t *testing.T) {
	f := newFakeAPI()
	c, notes, _ := newTestCoordinator(f)
	for _, raw := range []string{"", "abc", "-3", "0"} {
		if _, err := c.Open(raw); apperr.Classify(err) != apperr.KindValidation {
			t.Fatalf("Open(%q) err = %v", raw, err)
		}
	}
	if _, ok := c.Owner(); ok {
		t.Fatalf("invalid owner must not open the workflow")
	}
	if len(notes.texts()) != 4 {
		t.Fatalf("notifications = %v", notes.texts())
	}
	if err := c.LoadPreview(context.Background()); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("err = %v", err)
	}
}

func TestPostPreviewStates(t *testing.T) {
	f := newFakeAPI()
	f.previews[42] = readyPreview(1, 0)
	c, _, _ := newTestCoordinator(f)
	c.Open("42")
	if err := c.LoadPostPreview(context.Background(), ""); !errors.Is(err, ErrPreviewPending) {
		t.Fatalf("post-preview before preview: %v", err)
	}
	c.LoadPreview(context.Background())

	if err := c.LoadPostPreview(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	s := c.Snapshot()
	if s.Phase != PostPreviewReady || !s.PostPreview.Loaded || s.PostPreview.Variant != "standard" {
		t.Fatalf("state = %+v", s.PostPreview)
	}
	if err := c.LoadPostPreview(context.Background(), "broken"); err == nil {
		t.Fatalf("expected error")
	}
	s = c.Snapshot()
	if s.Phase != PostPreviewError || !strings.Contains(s.PostPreview.Error, "render failed") {
		t.Fatalf("state = %+v", s)
	}
}

func TestHistoryReadThroughCache(t *testing.T) {
	f := newFakeAPI()
	f.history = []api.HistoryRow{{Market: "1x2", Language: "en", Status: api.StatusOK}}
	c, _, _ := newTestCoordinator(f)
	c.Open("42")
	if err := c.LoadHistory(context.Background(), 10); err != nil {
		t.Fatal(err)
	}
	if err := c.LoadHistory(context.Background(), 10); err != nil {
		t.Fatal(err)
	}
	if f.historyCalls.Load() != 1 {
		t.Fatalf("history calls = %d", f.historyCalls.Load())
	}
	if h := c.Snapshot().History; len(h.Rows) != 1 || !h.FromCache {
		t.Fatalf("history = %+v", h)
	}
}

func TestRefreshToleratesOneLegFailing(t *testing.T) {
	f := newFakeAPI()
	f.previews[42] = readyPreview(1, 1)
	f.historyEr = apperr.Transient("publish.history", 503, errors.New("unavailable"))
	c, _, _ := newTestCoordinator(f)
	c.Open("42")

	status, out := c.Refresh(context.Background())
	if status != coord.JoinPartial {
		t.Fatalf("status = %v (%+v)", status, out)
	}
	s := c.Snapshot()
	if s.Phase != PreviewReady || s.Preview.Ready != 1 {
		t.Fatalf("preview leg should still apply: %+v", s)
	}
	if s.History.Error == "" || s.History.Loading {
		t.Fatalf("history = %+v", s.History)
	}
}

func TestCloseDropsInflightResults(t *testing.T) {
	f := newFakeAPI()
	f.previews[42] = readyPreview(1, 0)
	gate := make(chan struct{})
	f.gates[42] = gate
	c, _, _ := newTestCoordinator(f)
	c.Open("42")
	done := make(chan error, 1)
	go func() { done <- c.LoadPreview(context.Background()) }()
	for f.previewCalls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	c.Close()
	close(gate)
	<-done
	if s := c.Snapshot(); s.Phase != Idle || s.Preview.Loaded {
		t.Fatalf("state after close = %+v", s)
	}
}
