// Package prefs persists device state: the admin credential and the
// operator's filter choices. Writes are debounced so rapid edits of a
// filter field produce one file write.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"predictdash/internal/infra/logx"
)

// Filters are the history filter fields.
type Filters struct {
	Market string `json:"market,omitempty"`
	Status string `json:"status,omitempty"`
	Query  string `json:"query,omitempty"`
}

// Prefs is the persisted blob.
type Prefs struct {
	Credential   string  `json:"credential,omitempty"`
	Filters      Filters `json:"filters"`
	HistoryLimit int     `json:"historyLimit,omitempty"`
	Panel        string  `json:"panel,omitempty"`
}

type Store struct {
	path     string
	debounce time.Duration

	mu      sync.Mutex
	cur     Prefs
	timer   *time.Timer
	pending bool
	lastErr error
}

// Open loads path. A missing file yields empty prefs; an unreadable or
// corrupt file is logged and also yields empty prefs.
func Open(path string, debounce time.Duration) *Store {
	s := &Store{path: path, debounce: debounce}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		logx.Warnw("prefs unreadable, starting empty", "path", path, "err", err)
	default:
		if err := json.Unmarshal(b, &s.cur); err != nil {
			logx.Warnw("prefs corrupt, starting empty", "path", path, "err", err)
			s.cur = Prefs{}
		}
	}
	logx.RegisterSecret(s.cur.Credential)
	return s
}

// Get returns the current prefs.
func (s *Store) Get() Prefs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Update applies fn and schedules a write.
func (s *Store) Update(fn func(p *Prefs)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cur)
	s.pending = true
	if s.debounce <= 0 {
		s.lastErr = s.writeLocked()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.pending {
			s.lastErr = s.writeLocked()
		}
	})
}

// SetCredential stores (or with "" clears) the credential.
func (s *Store) SetCredential(token string) {
	logx.RegisterSecret(token)
	s.Update(func(p *Prefs) { p.Credential = token })
}

// Flush writes any pending change now.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.pending {
		return s.lastErr
	}
	s.lastErr = s.writeLocked()
	return s.lastErr
}

func (s *Store) writeLocked() error {
	s.pending = false
	if s.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(s.cur, "", "  ")
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir prefs dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.json")
	if err != nil {
		return fmt.Errorf("create temp prefs: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace prefs: %w", err)
	}
	logx.Debugw("prefs written", "path", s.path)
	return nil
}
