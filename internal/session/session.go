// Package session holds the admin credential and performs the global reset
// that follows a rejected credential.
package session

import (
	"strings"
	"sync"

	"predictdash/internal/apperr"
	"predictdash/internal/coord"
	"predictdash/internal/infra/logx"
)

// TokenSetter receives credential changes (the API client).
type TokenSetter interface {
	SetToken(token string)
}

// CredentialStore persists the credential (the device prefs).
type CredentialStore interface {
	SetCredential(token string)
}

type EventKind int

const (
	LoggedIn EventKind = iota
	LoggedOut
)

// Event tells the UI the session changed.
type Event struct {
	Kind   EventKind
	Reason string
}

type Options struct {
	Client TokenSetter
	Store  CredentialStore
	Cache  *coord.SectionCache
	// Navigators are stopped on logout.
	Navigators []*coord.Navigator
	// OnReset runs on logout after the credential is cleared, e.g. to close
	// the publish workflow.
	OnReset []func()
}

type Manager struct {
	opts   Options
	events chan Event

	mu       sync.Mutex
	token    string
	loggedIn bool
}

func New(opts Options) *Manager {
	return &Manager{opts: opts, events: make(chan Event, 4)}
}

// Events delivers session changes. Events are dropped when nobody reads.
func (m *Manager) Events() <-chan Event { return m.events }

func (m *Manager) send(e Event) {
	select {
	case m.events <- e:
	default:
		logx.Debugw("session event dropped", "kind", int(e.Kind))
	}
}

// Login installs token as the credential.
func (m *Manager) Login(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.Validation("credential", "must not be empty")
	}
	m.mu.Lock()
	m.token = token
	m.loggedIn = true
	m.mu.Unlock()
	if m.opts.Client != nil {
		m.opts.Client.SetToken(token)
	}
	if m.opts.Store != nil {
		m.opts.Store.SetCredential(token)
	}
	m.send(Event{Kind: LoggedIn})
	return nil
}

// Logout clears the credential and resets everything that depended on it.
// It reports whether a session was actually ended; repeated calls (several
// requests failing with 403 at once) are no-ops.
func (m *Manager) Logout(reason string) bool {
	m.mu.Lock()
	if !m.loggedIn {
		m.mu.Unlock()
		return false
	}
	m.loggedIn = false
	m.token = ""
	m.mu.Unlock()

	if m.opts.Client != nil {
		m.opts.Client.SetToken("")
	}
	if m.opts.Store != nil {
		m.opts.Store.SetCredential("")
	}
	for _, n := range m.opts.Navigators {
		n.Stop()
	}
	if m.opts.Cache != nil {
		m.opts.Cache.InvalidateAll()
	}
	for _, fn := range m.opts.OnReset {
		fn()
	}
	logx.Infow("session reset", "reason", reason)
	m.send(Event{Kind: LoggedOut, Reason: reason})
	return true
}

// Unauthorized is the API client's 403 hook.
func (m *Manager) Unauthorized() { m.Logout("credential rejected") }

func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *Manager) LoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loggedIn
}
