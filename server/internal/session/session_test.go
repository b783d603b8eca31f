package session

import (
	"context"
	"testing"

	"github.com/followbell/followbell/server/internal/kvstore"
)

func openStore(t *testing.T) *kvstore.DB {
	t.Helper()
	db, err := kvstore.Open(":memory:")
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCookies_Header(t *testing.T) {
	c := Cookies{NIDAut: "aut", NIDSes: "ses"}
	if got := c.Header(); got != "NID_AUT=aut; NID_SES=ses" {
		t.Errorf("Header: got %q", got)
	}
	if !c.Valid() {
		t.Error("Valid: got false, want true")
	}
	if (Cookies{NIDAut: "aut"}).Valid() {
		t.Error("Valid with missing NID_SES: got true, want false")
	}
}

func TestLogin_PersistsAndRestores(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	s := New(db)
	if err := s.Login(ctx, Cookies{NIDAut: "a", NIDSes: "b"}, "hash-1", "streamer"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	restored := New(db)
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	c, ok := restored.Cookies()
	if !ok || c.NIDAut != "a" || c.NIDSes != "b" {
		t.Errorf("Cookies: got %+v ok=%v", c, ok)
	}
	if restored.ProfileID() != "hash-1" {
		t.Errorf("ProfileID: got %q, want hash-1", restored.ProfileID())
	}
	if restored.Nickname() != "streamer" {
		t.Errorf("Nickname: got %q, want streamer", restored.Nickname())
	}
}

func TestRestore_Empty(t *testing.T) {
	s := New(openStore(t))
	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if s.LoggedIn() {
		t.Error("LoggedIn: got true on empty store")
	}
}

func TestExpire_ClearsMemoryAndStore(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	s := New(db)
	s.Login(ctx, Cookies{NIDAut: "a", NIDSes: "b"}, "hash-1", "streamer") //nolint:errcheck
	s.Expire(ctx)

	if s.LoggedIn() || s.ProfileID() != "" {
		t.Error("session not cleared in memory")
	}
	all, _ := db.All(ctx, Namespace)
	if len(all) != 0 {
		t.Errorf("persisted keys after Expire: got %d, want 0", len(all))
	}
}

func TestNilBackend(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	if err := s.Login(ctx, Cookies{NIDAut: "a", NIDSes: "b"}, "h", "n"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !s.LoggedIn() {
		t.Error("LoggedIn: got false")
	}
	s.Expire(ctx)
	if s.LoggedIn() {
		t.Error("LoggedIn after Expire: got true")
	}
}
