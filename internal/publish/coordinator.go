// Package publish drives the publish workflow for one fixture at a time:
// preview, optional rich preview, submit, settle and history refresh.
//
// Every step captures the owner's generation before it suspends on the
// network and re-checks it before applying its result, so reopening the
// workflow for another fixture can never be overwritten by a late response.
package publish

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"predictdash/internal/api"
	"predictdash/internal/apperr"
	"predictdash/internal/coord"
	"predictdash/internal/infra/logx"
)

// API is the part of the remote service the workflow talks to.
type API interface {
	Preview(ctx context.Context, owner int64) (api.Preview, error)
	PostPreview(ctx context.Context, owner int64, variant string) (api.PostPreview, error)
	Publish(ctx context.Context, req api.PublishRequest) (api.PublishResponse, error)
	History(ctx context.Context, owner int64, limit int) ([]api.HistoryRow, error)
}

var (
	// ErrNotOpen is returned by workflow steps when no owner is open.
	ErrNotOpen = errors.New("no fixture open")
	// ErrNoReadyMarkets rejects a submit locally when the preview has
	// nothing to publish.
	ErrNoReadyMarkets = apperr.Validation("", "no ready markets")
	// ErrPreviewPending rejects steps that need a resolved preview.
	ErrPreviewPending = apperr.Validation("", "preview not loaded yet")
	// ErrPublishing rejects a preview reload while a submit is running.
	ErrPublishing = apperr.Validation("", "publish in progress")
)

// PublishingSection is the panel section a submission mutates.
const PublishingSection = "publishing"

// Options wires a Coordinator.
type Options struct {
	API       API
	Registry  *coord.Registry
	Navigator *coord.Navigator
	Guard     *coord.Guard
	Cache     *coord.SectionCache

	HistoryTTL   time.Duration
	HistoryLimit int
	ReasonLimit  int
	Variant      string
}

// SubmitOptions are the operator's choices for one submission.
type SubmitOptions struct {
	Force   bool
	DryRun  bool
	Variant string
}

// Coordinator owns the publish state of the currently open fixture.
type Coordinator struct {
	opts Options

	mu    sync.Mutex
	owner string
	state State
}

func New(opts Options) *Coordinator {
	if opts.Registry == nil {
		opts.Registry = coord.NewRegistry()
	}
	if opts.Navigator == nil {
		opts.Navigator = coord.NewNavigator(context.Background())
	}
	if opts.Guard == nil {
		opts.Guard = coord.NewGuard(coord.GuardOptions{})
	}
	if opts.Cache == nil {
		opts.Cache = coord.NewSectionCache(nil)
	}
	if opts.HistoryTTL <= 0 {
		opts.HistoryTTL = 30 * time.Second
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 25
	}
	if opts.ReasonLimit <= 0 {
		opts.ReasonLimit = 3
	}
	if opts.Variant == "" {
		opts.Variant = "standard"
	}
	return &Coordinator{opts: opts}
}

// ParseOwner validates an operator-supplied fixture id.
func ParseOwner(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, apperr.Validation("fixture", "id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("fixture", "id must be a positive integer")
	}
	return id, nil
}

func ownerKey(id int64) string { return strconv.FormatInt(id, 10) }

// PublishKey is the guard key serialising submissions for owner.
func PublishKey(id int64) string { return "publish:" + ownerKey(id) }

// PostPreviewKey is the guard key for rich preview loads of owner.
func PostPreviewKey(id int64) string { return "post-preview:" + ownerKey(id) }

// HistoryCacheKey is the section cache key for owner's history.
func HistoryCacheKey(id int64) string { return "history:" + ownerKey(id) }

// Open validates raw and makes it the workflow's owner. The previous owner
// is closed and its navigation signal cancelled. An invalid id is reported
// to the fixture control and leaves the workflow untouched.
func (c *Coordinator) Open(raw string) (coord.RequestContext, error) {
	id, err := ParseOwner(raw)
	if err != nil {
		c.opts.Guard.Report("fixture", err)
		return coord.RequestContext{}, err
	}
	owner := ownerKey(id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owner != "" && c.owner != owner {
		c.opts.Registry.Close(c.owner)
	}
	gen := c.opts.Registry.Open(owner)
	c.opts.Navigator.BeginNavigation("publish:" + owner)
	c.owner = owner
	c.state = State{Owner: id, Generation: gen, Phase: Idle}
	logx.Debugw("publish workflow opened", "owner", owner, "generation", gen)
	return coord.RequestContext{OwnerID: owner, Generation: gen}, nil
}

// Close resets the workflow to Idle. In-flight steps for the old owner
// are cancelled and their results dropped.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owner == "" {
		return
	}
	c.opts.Registry.Close(c.owner)
	c.opts.Navigator.Stop()
	c.owner = ""
	c.state = State{}
}

// Owner returns the open fixture id.
func (c *Coordinator) Owner() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Owner, c.owner != ""
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// step is one asynchronous workflow step bound to the generation that was
// current when it started.
type step struct {
	rc     coord.RequestContext
	id     int64
	signal context.Context
	prior  Phase
}

func (c *Coordinator) begin() (step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owner == "" {
		return step{}, ErrNotOpen
	}
	rc, ok := c.opts.Registry.Capture(c.owner)
	if !ok {
		return step{}, ErrNotOpen
	}
	_, sig := c.opts.Navigator.Current()
	return step{rc: rc, id: c.state.Owner, signal: sig, prior: c.state.Phase}, nil
}

// apply runs fn against the state only while st is still current.
func (c *Coordinator) apply(st step, name string, fn func(s *State)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opts.Registry.Still(st.rc) {
		logx.Debugw("dropping stale result", "step", name, "owner", st.rc.OwnerID, "generation", st.rc.Generation)
		return false
	}
	fn(&c.state)
	return true
}

func (c *Coordinator) bind(ctx context.Context, st step) (context.Context, context.CancelFunc) {
	return coord.Bind(ctx, st.signal)
}

// failed records err on the state if st is current. The phase leaves
// loading only if no other step moved it meanwhile. Cancellations only
// restore the phase.
func (c *Coordinator) failed(st step, name string, loading Phase, err error) bool {
	return c.apply(st, name, func(s *State) {
		if s.Phase == loading {
			s.Phase = s.resting(st.prior)
		}
		if !apperr.IsCancelled(err) {
			s.LastError = apperr.Compact(err, 140)
		}
	})
}

// LoadPreview fetches the preview and moves to PreviewReady or
// PreviewBlocked. On failure the last good preview is kept.
func (c *Coordinator) LoadPreview(ctx context.Context) error {
	st, err := c.begin()
	if err != nil {
		return err
	}
	if st.prior == Publishing {
		return ErrPublishing
	}
	if !c.apply(st, "preview", func(s *State) { s.Phase = PreviewLoading; s.LastError = "" }) {
		return nil
	}
	rctx, cancel := c.bind(ctx, st)
	defer cancel()
	p, err := c.opts.API.Preview(rctx, st.id)
	if err != nil {
		if c.failed(st, "preview", PreviewLoading, err) {
			c.opts.Guard.Report("preview:"+st.rc.OwnerID, err)
			return err
		}
		return nil
	}
	summary := SummarizePreview(p)
	c.apply(st, "preview", func(s *State) {
		s.Preview = summary
		s.PostPreview = PostPreviewState{}
		if summary.Ready > 0 {
			s.Phase = PreviewReady
		} else {
			s.Phase = PreviewBlocked
		}
	})
	return nil
}

// LoadPostPreview fetches the rich preview for variant. Only one load per
// owner runs at a time.
func (c *Coordinator) LoadPostPreview(ctx context.Context, variant string) error {
	st, err := c.begin()
	if err != nil {
		return err
	}
	if variant == "" {
		variant = c.opts.Variant
	}
	_, err = c.opts.Guard.Run(ctx, PostPreviewKey(st.id), "rich preview is already loading", func(ctx context.Context) error {
		if !st.prior.previewResolved() {
			return ErrPreviewPending
		}
		if !c.apply(st, "post-preview", func(s *State) { s.Phase = PostPreviewLoading }) {
			return nil
		}
		rctx, cancel := c.bind(ctx, st)
		defer cancel()
		pp, err := c.opts.API.PostPreview(rctx, st.id, variant)
		if err != nil {
			if apperr.IsCancelled(err) {
				c.apply(st, "post-preview", func(s *State) {
					if s.Phase == PostPreviewLoading {
						s.Phase = s.resting(st.prior)
					}
				})
				return err
			}
			if !c.apply(st, "post-preview", func(s *State) {
				s.Phase = PostPreviewError
				s.PostPreview = PostPreviewState{Variant: variant, Error: apperr.Compact(err, 140)}
			}) {
				return nil
			}
			return err
		}
		c.apply(st, "post-preview", func(s *State) {
			s.Phase = PostPreviewReady
			if pp.Variant == "" {
				pp.Variant = variant
			}
			s.PostPreview = PostPreviewState{Loaded: true, Variant: pp.Variant, Markets: pp.Markets}
		})
		return nil
	})
	return err
}

// Submit publishes the open fixture. It is refused while another submit
// for the same owner is running and, without any network call, when the
// last preview has no ready markets. A reservation conflict settles as
// partial and leaves the preview as it was.
func (c *Coordinator) Submit(ctx context.Context, opts SubmitOptions) (*ResultSet, error) {
	st, err := c.begin()
	if err != nil {
		return nil, err
	}
	if opts.Variant == "" {
		opts.Variant = c.opts.Variant
	}
	return coord.Do(ctx, c.opts.Guard, PublishKey(st.id), "publish already in progress", func(ctx context.Context) (*ResultSet, error) {
		snap := c.Snapshot()
		if !st.prior.previewResolved() && st.prior != Settled {
			return nil, ErrPreviewPending
		}
		if snap.Preview.Ready == 0 {
			return nil, ErrNoReadyMarkets
		}
		if !c.apply(st, "publish", func(s *State) { s.Phase = Publishing; s.LastError = "" }) {
			return nil, nil
		}
		rctx, cancel := c.bind(ctx, st)
		defer cancel()
		resp, err := c.opts.API.Publish(rctx, api.PublishRequest{
			OwnerID: st.id,
			Force:   opts.Force,
			DryRun:  opts.DryRun,
			Variant: opts.Variant,
		})
		if err != nil {
			if !c.failed(st, "publish", Publishing, err) {
				return nil, nil
			}
			return nil, err
		}
		if !resp.ReservationLocked || len(resp.Results) > 0 {
			c.opts.Cache.InvalidatePrefix(PublishingSection + ":")
			c.opts.Cache.Invalidate(PublishingSection)
			c.opts.Cache.Invalidate(HistoryCacheKey(st.id))
		}
		rs := Aggregate(resp.DryRun, resp.Results)
		rs.ReservationLocked = resp.ReservationLocked
		settlement := rs.Settle()
		line := rs.SummaryLine(c.opts.ReasonLimit)
		if !c.apply(st, "publish", func(s *State) {
			s.Phase = Settled
			s.LastResult = &rs
			s.Settlement = settlement
			s.SettleMessage = line
		}) {
			return nil, nil
		}
		logx.Infow("publish settled", "owner", st.rc.OwnerID, "settlement", settlement.String(), "dry_run", rs.DryRun, "reservation_locked", rs.ReservationLocked)
		return &rs, nil
	})
}

type historyPayload struct {
	limit int
	rows  []api.HistoryRow
}

// LoadHistory reads the owner's history through the section cache.
func (c *Coordinator) LoadHistory(ctx context.Context, limit int) error {
	return c.loadHistory(ctx, limit, false)
}

func (c *Coordinator) loadHistory(ctx context.Context, limit int, force bool) error {
	st, err := c.begin()
	if err != nil {
		return err
	}
	if limit <= 0 {
		limit = c.opts.HistoryLimit
	}
	key := HistoryCacheKey(st.id)
	if !force {
		if v, ok := c.opts.Cache.Get(key); ok {
			if hp, ok := v.(historyPayload); ok && hp.limit == limit {
				c.apply(st, "history", func(s *State) {
					s.History = HistoryState{Rows: hp.rows, FromCache: true}
				})
				return nil
			}
		}
	}
	if !c.apply(st, "history", func(s *State) { s.History.Loading = true; s.History.Error = "" }) {
		return nil
	}
	rctx, cancel := c.bind(ctx, st)
	defer cancel()
	rows, err := c.opts.API.History(rctx, st.id, limit)
	if err != nil {
		ok := c.apply(st, "history", func(s *State) {
			s.History.Loading = false
			if !apperr.IsCancelled(err) {
				s.History.Error = apperr.Compact(err, 140)
			}
		})
		if !ok {
			return nil
		}
		c.opts.Guard.Report("history:"+st.rc.OwnerID, err)
		return err
	}
	c.opts.Cache.Set(key, historyPayload{limit: limit, rows: rows}, c.opts.HistoryTTL)
	c.apply(st, "history", func(s *State) { s.History = HistoryState{Rows: rows} })
	return nil
}

// Refresh reloads the preview and the history concurrently. Either leg may
// fail without sinking the other; the status says which case happened.
func (c *Coordinator) Refresh(ctx context.Context) (coord.JoinStatus, []coord.Outcome) {
	out := coord.Join(ctx,
		coord.Task{Name: "preview", Run: c.LoadPreview},
		coord.Task{Name: "history", Run: func(ctx context.Context) error { return c.loadHistory(ctx, 0, true) }},
	)
	return coord.Summarize(out), out
}
