package session

import (
	"context"
	"testing"
	"time"

	"predictdash/internal/apperr"
	"predictdash/internal/coord"
)

type fakeClient struct{ tokens []string }

func (f *fakeClient) SetToken(t string) { f.tokens = append(f.tokens, t) }

type fakeStore struct{ cred string }

func (f *fakeStore) SetCredential(t string) { f.cred = t }

func TestLogoutResetsEverything(t *testing.T) {
	cl, st := &fakeClient{}, &fakeStore{}
	cache := coord.NewSectionCache(nil)
	nav := coord.NewNavigator(context.Background())
	resets := 0
	m := New(Options{Client: cl, Store: st, Cache: cache, Navigators: []*coord.Navigator{nav}, OnReset: []func(){func() { resets++ }}})

	if err := m.Login("  tok  "); err != nil {
		t.Fatal(err)
	}
	if m.Token() != "tok" || st.cred != "tok" || !m.LoggedIn() {
		t.Fatalf("login not applied: %q %q", m.Token(), st.cred)
	}
	cache.Set("operations:1", 1, time.Minute)
	sig := nav.BeginNavigation("panel:operations")

	m.Unauthorized()
	m.Unauthorized()

	if m.LoggedIn() || m.Token() != "" || st.cred != "" {
		t.Fatalf("credential should be cleared")
	}
	if sig.Err() == nil {
		t.Fatalf("navigation should be cancelled")
	}
	if cache.Len() != 0 {
		t.Fatalf("cache should be emptied")
	}
	if resets != 1 {
		t.Fatalf("reset hooks ran %d times", resets)
	}
	if last := cl.tokens[len(cl.tokens)-1]; last != "" {
		t.Fatalf("client token = %q", last)
	}

	if e := <-m.Events(); e.Kind != LoggedIn {
		t.Fatalf("first event = %+v", e)
	}
	if e := <-m.Events(); e.Kind != LoggedOut || e.Reason != "credential rejected" {
		t.Fatalf("second event = %+v", e)
	}
}

func TestLoginRejectsEmpty(t *testing.T) {
	m := New(Options{})
	if err := m.Login("   "); apperr.Classify(err) != apperr.KindValidation {
		t.Fatalf("err = %v", err)
	}
}
