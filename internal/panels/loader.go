// Package panels loads dashboard panel pages through the section cache.
//
// Switching the visible panel opens a new generation for the "panel" owner
// and a new navigation signal, so a slow page for the previous panel is both
// cancelled and, if it still arrives, ignored.
package panels

import (
	"context"
	"fmt"
	"time"

	"predictdash/internal/api"
	"predictdash/internal/apperr"
	"predictdash/internal/coord"
	"predictdash/internal/infra/logx"
)

const (
	Operations = "operations"
	Fixtures   = "fixtures"
	Publishing = "publishing"
	Models     = "models"
)

// Sections lists the panels in display order.
var Sections = []string{Operations, Fixtures, Publishing, Models}

// Owner is the registry owner shared by all panels.
const Owner = "panel"

// Lister fetches one page of a section.
type Lister interface {
	ListPanel(ctx context.Context, section string, page, limit int) (api.Page, error)
}

type Options struct {
	API       Lister
	Registry  *coord.Registry
	Navigator *coord.Navigator
	Cache     *coord.SectionCache
	Guard     *coord.Guard
	// TTL returns the cache lifetime of section.
	TTL      func(section string) time.Duration
	PageSize int
}

// Ticket ties a load to the panel switch that requested it.
type Ticket struct {
	Section string
	rc      coord.RequestContext
	signal  context.Context
}

// Result is a loaded page. Current is false when the operator moved to
// another panel before the page arrived; such a page must not be shown.
type Result struct {
	Section   string
	Page      api.Page
	FetchedAt time.Time
	FromCache bool
	Current   bool
}

type Loader struct {
	opts Options
}

func New(opts Options) *Loader {
	if opts.Registry == nil {
		opts.Registry = coord.NewRegistry()
	}
	if opts.Navigator == nil {
		opts.Navigator = coord.NewNavigator(context.Background())
	}
	if opts.Cache == nil {
		opts.Cache = coord.NewSectionCache(nil)
	}
	if opts.Guard == nil {
		opts.Guard = coord.NewGuard(coord.GuardOptions{})
	}
	if opts.TTL == nil {
		opts.TTL = func(string) time.Duration { return 30 * time.Second }
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	return &Loader{opts: opts}
}

// Known reports whether section is a dashboard panel.
func Known(section string) bool {
	for _, s := range Sections {
		if s == section {
			return true
		}
	}
	return false
}

// CacheKey is the section cache key of one page.
func CacheKey(section string, page int) string { return fmt.Sprintf("%s:%d", section, page) }

// Switch makes section the visible panel.
func (l *Loader) Switch(section string) (Ticket, error) {
	if !Known(section) {
		err := apperr.Validation("panel", fmt.Sprintf("unknown section %q", section))
		l.opts.Guard.Report("panel", err)
		return Ticket{}, err
	}
	gen := l.opts.Registry.Open(Owner)
	sig := l.opts.Navigator.BeginNavigation("panel:" + section)
	return Ticket{Section: section, rc: coord.RequestContext{OwnerID: Owner, Generation: gen}, signal: sig}, nil
}

// IsCurrent reports whether t still belongs to the visible panel.
func (l *Loader) IsCurrent(t Ticket) bool { return l.opts.Registry.Still(t.rc) }

// Load returns page of t's section, from the cache when fresh unless force
// is set. Failures of a load that is no longer current are dropped.
func (l *Loader) Load(ctx context.Context, t Ticket, page int, force bool) (Result, error) {
	if page <= 0 {
		page = 1
	}
	key := CacheKey(t.Section, page)
	if !force {
		if e, ok := l.opts.Cache.Entry(key); ok {
			if p, ok := l.opts.Cache.Get(key); ok {
				return Result{Section: t.Section, Page: p.(api.Page), FetchedAt: e.FetchedAt, FromCache: true, Current: l.IsCurrent(t)}, nil
			}
		}
	}
	rctx, cancel := coord.Bind(ctx, t.signal)
	defer cancel()
	p, err := l.opts.API.ListPanel(rctx, t.Section, page, l.opts.PageSize)
	if err != nil {
		if !l.IsCurrent(t) {
			logx.Debugw("dropping stale panel failure", "section", t.Section, "err", err)
			return Result{Section: t.Section}, nil
		}
		l.opts.Guard.Report("panel:"+t.Section, err)
		return Result{Section: t.Section, Current: true}, err
	}
	l.opts.Cache.Set(key, p, l.opts.TTL(t.Section))
	e, _ := l.opts.Cache.Entry(key)
	return Result{Section: t.Section, Page: p, FetchedAt: e.FetchedAt, Current: l.IsCurrent(t)}, nil
}

// Invalidate drops every cached page of section.
func (l *Loader) Invalidate(section string) int {
	return l.opts.Cache.InvalidatePrefix(section + ":")
}

// Age returns how old the cached first page of section is.
func (l *Loader) Age(section string, now time.Time) (time.Duration, bool) {
	e, ok := l.opts.Cache.Entry(CacheKey(section, 1))
	if !ok {
		return 0, false
	}
	return e.Age(now), true
}
