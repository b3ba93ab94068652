package coord

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"predictdash/internal/apperr"
	"predictdash/internal/infra/clock"
)

type recorder struct{ got []Notification }

func (r *recorder) Notify(n Notification) { r.got = append(r.got, n) }

func newTestGuard() (*Guard, *clock.Fake, *recorder) {
	fc := clock.NewFake()
	rec := &recorder{}
	return NewGuard(GuardOptions{Cooldown: 1100 * time.Millisecond, Clock: fc, Notifier: rec}), fc, rec
}

func TestTryAcquireMutualExclusion(t *testing.T) {
	g, _, _ := newTestGuard()
	if !g.TryAcquire("publish:42") {
		t.Fatalf("first acquire should succeed")
	}
	if g.TryAcquire("publish:42") {
		t.Fatalf("second acquire should fail")
	}
	g.Release("publish:42")
	if !g.TryAcquire("publish:42") {
		t.Fatalf("acquire after release should succeed")
	}
	g.Release("never-held")
}

func TestBusyNotificationThrottled(t *testing.T) {
	g, fc, rec := newTestGuard()
	g.TryAcquire("publish:42")
	noop := func(context.Context) error { t.Fatal("fn must not run while busy"); return nil }

	for i := 0; i < 2; i++ {
		ran, err := g.Run(context.Background(), "publish:42", "publish already running", noop)
		if ran || !errors.Is(err, ErrBusy) {
			t.Fatalf("ran=%v err=%v", ran, err)
		}
		fc.Advance(300 * time.Millisecond)
	}
	if len(rec.got) != 1 {
		t.Fatalf("expected 1 notification within cooldown, got %d", len(rec.got))
	}
	fc.Advance(1200 * time.Millisecond)
	g.Run(context.Background(), "publish:42", "publish already running", noop)
	if len(rec.got) != 2 {
		t.Fatalf("expected 2 notifications after cooldown, got %d", len(rec.got))
	}
	if rec.got[0].Key != "publish:42" || rec.got[0].Level != LevelInfo {
		t.Fatalf("unexpected notification %+v", rec.got[0])
	}
}

func TestRunReleasesOnError(t *testing.T) {
	g, _, rec := newTestGuard()
	boom := apperr.Transient("publish.submit", 500, errors.New("internal   error"))
	ran, err := g.Run(context.Background(), "k", "busy", func(context.Context) error { return boom })
	if !ran || !errors.Is(err, boom) {
		t.Fatalf("ran=%v err=%v", ran, err)
	}
	if g.Held("k") || !g.TryAcquire("k") {
		t.Fatalf("lock should be released after error")
	}
	if len(rec.got) != 1 || rec.got[0].Level != LevelError {
		t.Fatalf("expected one error notification, got %+v", rec.got)
	}
	if rec.got[0].Text != "publish.submit: status 500: internal error" {
		t.Fatalf("text = %q", rec.got[0].Text)
	}
}

func TestRunReleasesOnPanic(t *testing.T) {
	g, _, _ := newTestGuard()
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("panic should propagate")
			}
		}()
		g.Run(context.Background(), "k", "busy", func(context.Context) error { panic("boom") })
	}()
	if !g.TryAcquire("k") {
		t.Fatalf("lock should be released after panic")
	}
}

func TestReportPolicy(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		want  int
		level Level
	}{
		{"cancelled", fmt.Errorf("op: %w", apperr.ErrCancelled), 0, 0},
		{"context cancelled", context.Canceled, 0, 0},
		{"auth", fmt.Errorf("op: %w", apperr.ErrAuth), 0, 0},
		{"validation", apperr.Validation("owner", "must be a positive integer"), 1, LevelWarn},
		{"unknown", errors.New("odd"), 1, LevelError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, _, rec := newTestGuard()
			g.Report("k", tc.err)
			if len(rec.got) != tc.want {
				t.Fatalf("got %d notifications", len(rec.got))
			}
			if tc.want == 1 && rec.got[0].Level != tc.level {
				t.Fatalf("level = %v", rec.got[0].Level)
			}
		})
	}
}

func TestObserversSeeHoldAndRelease(t *testing.T) {
	g, _, _ := newTestGuard()
	var seen []string
	g.OnChange(func(key string, held bool) { seen = append(seen, fmt.Sprintf("%s=%v", key, held)) })
	v, err := Do(context.Background(), g, "post-preview:42", "busy", func(ctx context.Context) (int, error) {
		if !g.Held("post-preview:42") {
			t.Fatalf("key should be held while running")
		}
		return 7, nil
	})
	if err != nil || v != 7 {
		t.Fatalf("Do = %d, %v", v, err)
	}
	if len(seen) != 2 || seen[0] != "post-preview:42=true" || seen[1] != "post-preview:42=false" {
		t.Fatalf("observer events = %v", seen)
	}
}
