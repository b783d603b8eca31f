package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/followbell/followbell/server/internal/session"
)

// fakeCreds is an in-memory Credentials.
type fakeCreds struct {
	mu       sync.Mutex
	cookies  session.Cookies
	ok       bool
	id, nick string
	expired  int
}

func loggedIn() *fakeCreds {
	return &fakeCreds{cookies: session.Cookies{NIDAut: "aut", NIDSes: "ses"}, ok: true}
}

func (f *fakeCreds) Cookies() (session.Cookies, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cookies, f.ok
}

func (f *fakeCreds) ProfileID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *fakeCreds) SetProfile(id, nick string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id, f.nick = id, nick
}

func (f *fakeCreds) Expire(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies, f.ok, f.id, f.nick = session.Cookies{}, false, "", ""
	f.expired++
}

const statusBody = `{"code":200,"content":{"userIdHash":"abc123","nickname":"streamer","loggedIn":true}}`

const followersBody = `{"code":200,"content":{"page":0,"size":10,"totalCount":2,"totalPages":1,"data":[
	{"user":{"userIdHash":"u1","nickname":"one","profileImageUrl":null},"followingSince":"2026-01-01 12:00:00"},
	{"user":{"userIdHash":"u2","nickname":"two","profileImageUrl":"https://img/2.png"},"followingSince":"2026-01-01 11:00:00"}
]}}`

// platformServer serves both endpoints and counts follower list requests.
type platformServer struct {
	*httptest.Server
	followerCalls atomic.Int32
	statusCalls   atomic.Int32
	followersCode atomic.Int32
	lastCookie    atomic.Value
	lastUA        atomic.Value
}

func newPlatformServer(t *testing.T) *platformServer {
	t.Helper()
	ps := &platformServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/nng_main/v1/user/getUserStatus", func(w http.ResponseWriter, r *http.Request) {
		ps.statusCalls.Add(1)
		if r.Header.Get("Cookie") != "NID_AUT=aut; NID_SES=ses" {
			fmt.Fprint(w, `{"code":200,"content":{"userIdHash":null,"loggedIn":false}}`)
			return
		}
		fmt.Fprint(w, statusBody)
	})
	mux.HandleFunc("/manage/v1/channels/abc123/followers", func(w http.ResponseWriter, r *http.Request) {
		ps.followerCalls.Add(1)
		ps.lastCookie.Store(r.Header.Get("Cookie"))
		ps.lastUA.Store(r.Header.Get("User-Agent"))
		if code := ps.followersCode.Load(); code != 0 {
			w.WriteHeader(int(code))
			return
		}
		if r.URL.Query().Get("page") != "0" || r.URL.Query().Get("size") != "10" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, followersBody)
	})
	ps.Server = httptest.NewServer(mux)
	t.Cleanup(ps.Close)
	return ps
}

func (ps *platformServer) client(creds Credentials, opts Options) *Client {
	opts.ChzzkURL = ps.URL
	opts.NaverGameURL = ps.URL
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Millisecond
	}
	return New(creds, opts)
}

func TestFetch_ReturnsFirstPage(t *testing.T) {
	ps := newPlatformServer(t)
	creds := loggedIn()
	c := ps.client(creds, Options{})

	got, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 || got[0].ID() != "u1" || got[1].ID() != "u2" {
		t.Fatalf("got %+v, want [u1 u2]", got)
	}
	if got[0].User.ProfileImageURL != nil {
		t.Errorf("u1 profile image: got %v, want nil", *got[0].User.ProfileImageURL)
	}
	if got[1].User.ProfileImageURL == nil || *got[1].User.ProfileImageURL != "https://img/2.png" {
		t.Errorf("u2 profile image: got %v", got[1].User.ProfileImageURL)
	}
	if creds.ProfileID() != "abc123" {
		t.Errorf("profile id: got %q, want abc123", creds.ProfileID())
	}
	if c := ps.lastCookie.Load(); c != "NID_AUT=aut; NID_SES=ses" {
		t.Errorf("cookie header: got %v", c)
	}
	if ua := ps.lastUA.Load(); ua != userAgent {
		t.Errorf("user agent: got %v, want %s", ua, userAgent)
	}
}

func TestFetch_ProfileResolvedOnce(t *testing.T) {
	ps := newPlatformServer(t)
	c := ps.client(loggedIn(), Options{})

	for i := 0; i < 3; i++ {
		if _, err := c.Fetch(context.Background()); err != nil {
			t.Fatalf("Fetch %d: %v", i, err)
		}
	}
	if n := ps.statusCalls.Load(); n != 1 {
		t.Errorf("status calls: got %d, want 1", n)
	}
}

func TestFetch_NoSession(t *testing.T) {
	ps := newPlatformServer(t)
	c := ps.client(&fakeCreds{}, Options{})

	_, err := c.Fetch(context.Background())
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("err: got %v, want ErrNoSession", err)
	}
	if n := ps.followerCalls.Load(); n != 0 {
		t.Errorf("follower calls: got %d, want 0", n)
	}
}

func TestFetch_UnauthorizedExpiresSession(t *testing.T) {
	ps := newPlatformServer(t)
	ps.followersCode.Store(http.StatusUnauthorized)
	creds := loggedIn()
	c := ps.client(creds, Options{})

	_, err := c.Fetch(context.Background())
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err: got %v, want ErrSessionExpired", err)
	}
	if creds.expired != 1 {
		t.Errorf("Expire calls: got %d, want 1", creds.expired)
	}
	if n := ps.followerCalls.Load(); n != 1 {
		t.Errorf("401 must not be retried: got %d calls", n)
	}
	if _, err := c.Fetch(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("second Fetch: got %v, want ErrNoSession", err)
	}
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	ps := newPlatformServer(t)
	ps.followersCode.Store(http.StatusBadGateway)
	c := ps.client(loggedIn(), Options{RetryAttempts: 3})

	_, err := c.Fetch(context.Background())
	if err == nil {
		t.Fatal("want error after retries")
	}
	var se *statusError
	if !errors.As(err, &se) || se.code != http.StatusBadGateway {
		t.Errorf("err: got %v, want status 502", err)
	}
	if n := ps.followerCalls.Load(); n != 3 {
		t.Errorf("follower calls: got %d, want 3", n)
	}
}

func TestFetch_ClientErrorNotRetried(t *testing.T) {
	ps := newPlatformServer(t)
	ps.followersCode.Store(http.StatusNotFound)
	c := ps.client(loggedIn(), Options{RetryAttempts: 3})

	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatal("want error for 404")
	}
	if n := ps.followerCalls.Load(); n != 1 {
		t.Errorf("follower calls: got %d, want 1", n)
	}
}

func TestFetch_RateLimitedServesCache(t *testing.T) {
	ps := newPlatformServer(t)
	c := ps.client(loggedIn(), Options{MinInterval: time.Hour})

	first, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	second, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if n := ps.followerCalls.Load(); n != 1 {
		t.Errorf("follower calls: got %d, want 1", n)
	}
	if len(second) != len(first) || second[0].ID() != first[0].ID() {
		t.Errorf("cached: got %+v, want %+v", second, first)
	}

	c.SetMinInterval(0)
	if _, err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch after SetMinInterval(0): %v", err)
	}
	if n := ps.followerCalls.Load(); n != 2 {
		t.Errorf("follower calls after lifting limit: got %d, want 2", n)
	}
}

func TestVerify(t *testing.T) {
	ps := newPlatformServer(t)
	creds := &fakeCreds{}
	c := ps.client(creds, Options{})

	p, err := c.Verify(context.Background(), session.Cookies{NIDAut: "aut", NIDSes: "ses"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.IDHash != "abc123" || p.Nickname != "streamer" {
		t.Errorf("got %+v, want abc123/streamer", p)
	}
	if creds.ProfileID() != "" {
		t.Error("Verify must not touch the stored session")
	}

	_, err = c.Verify(context.Background(), session.Cookies{NIDAut: "bad", NIDSes: "bad"})
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("bad cookies: got %v, want ErrSessionExpired", err)
	}
	_, err = c.Verify(context.Background(), session.Cookies{})
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("empty cookies: got %v, want ErrNoSession", err)
	}
}
