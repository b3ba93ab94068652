// Package app builds the long-lived collaborators of one dashboard session
// from the loaded configuration. Nothing here is global: the UI and the CLI
// receive the App by pointer.
package app

import (
	"context"
	"net/http"

	"predictdash/internal/api"
	"predictdash/internal/config"
	"predictdash/internal/coord"
	"predictdash/internal/infra/clock"
	"predictdash/internal/infra/logx"
	"predictdash/internal/panels"
	"predictdash/internal/prefs"
	"predictdash/internal/publish"
	"predictdash/internal/session"
)

// GuardEvent reports a guard key changing state.
type GuardEvent struct {
	Key  string
	Held bool
}

// App holds the coordination layer of one session.
type App struct {
	Config  config.Config
	Clock   clock.Clock
	Client  *api.Client
	Metrics *api.Metrics

	Registry  *coord.Registry
	PanelNav  *coord.Navigator
	DetailNav *coord.Navigator
	Guard     *coord.Guard
	Cache     *coord.SectionCache
	Toasts    *coord.Toasts
	Panels    *panels.Loader
	Publish   *publish.Coordinator
	Session   *session.Manager
	Prefs     *prefs.Store

	guardEvents chan GuardEvent
}

// Options overrides collaborators, mainly for tests.
type Options struct {
	Clock clock.Clock
	// Base is the round tripper under the rate-limited transport.
	Base http.RoundTripper
}

// New wires every collaborator from cfg. The stored credential, if any, is
// installed and the session starts logged in.
func New(ctx context.Context, cfg config.Config, opts Options) *App {
	clk := clock.OrReal(opts.Clock)
	a := &App{
		Config:      cfg,
		Clock:       clk,
		Metrics:     api.NewMetrics(),
		Registry:    coord.NewRegistry(),
		PanelNav:    coord.NewNavigator(ctx),
		DetailNav:   coord.NewNavigator(ctx),
		Cache:       coord.NewSectionCache(clk),
		Toasts:      coord.NewToasts(clk, cfg.UI.ToastTTL, 3),
		guardEvents: make(chan GuardEvent, 64),
	}
	a.Prefs = prefs.Open(cfg.Prefs.Path, cfg.Prefs.Debounce)

	tr := api.DefaultTransportOptions()
	tr.Clock = clk
	tr.Metrics = a.Metrics
	tr.Limit = api.Limit{RPS: cfg.API.RPS, Burst: cfg.API.Burst}
	tr.RetryMax = cfg.API.RetryMax
	if cfg.API.BackoffBase > 0 {
		tr.BackoffBase = cfg.API.BackoffBase
	}
	if cfg.API.BackoffCap > 0 {
		tr.BackoffCap = cfg.API.BackoffCap
	}
	lt := api.NewLimitedTransport(tr)
	lt.Base = opts.Base

	a.Client = api.New(api.Options{
		BaseURL:     cfg.API.BaseURL,
		AdminHeader: cfg.API.AdminHeader,
		Transport:   lt,
		Metrics:     a.Metrics,
	})

	a.Guard = coord.NewGuard(coord.GuardOptions{
		Cooldown: cfg.Guard.BusyCooldown,
		Clock:    clk,
		Notifier: a.Toasts,
	})
	a.Guard.OnChange(func(key string, held bool) {
		select {
		case a.guardEvents <- GuardEvent{Key: key, Held: held}:
		default:
			logx.Debugw("guard event dropped", "key", key)
		}
	})

	a.Panels = panels.New(panels.Options{
		API:       a.Client,
		Registry:  a.Registry,
		Navigator: a.PanelNav,
		Cache:     a.Cache,
		Guard:     a.Guard,
		TTL:       cfg.Cache.TTL.For,
	})
	a.Publish = publish.New(publish.Options{
		API:          a.Client,
		Registry:     a.Registry,
		Navigator:    a.DetailNav,
		Guard:        a.Guard,
		Cache:        a.Cache,
		HistoryTTL:   cfg.Cache.TTL.Publishing,
		HistoryLimit: cfg.Publish.HistoryLimit,
		ReasonLimit:  cfg.Publish.ReasonLimit,
		Variant:      cfg.Publish.Variant,
	})
	a.Session = session.New(session.Options{
		Client:     a.Client,
		Store:      a.Prefs,
		Cache:      a.Cache,
		Navigators: []*coord.Navigator{a.PanelNav, a.DetailNav},
		OnReset:    []func(){a.Publish.Close, a.Toasts.Clear},
	})
	a.Client.OnUnauthorized(a.Session.Unauthorized)

	token := cfg.API.Token
	if token == "" {
		token = a.Prefs.Get().Credential
	}
	if token != "" {
		_ = a.Session.Login(token)
	}
	return a
}

// GuardEvents delivers guard hold/release changes for the UI.
func (a *App) GuardEvents() <-chan GuardEvent { return a.guardEvents }

// Close flushes pending prefs and cancels outstanding navigation.
func (a *App) Close() error {
	a.PanelNav.Stop()
	a.DetailNav.Stop()
	return a.Prefs.Flush()
}
