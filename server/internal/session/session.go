// Package session holds the platform login: the NID_AUT/NID_SES cookie pair
// handed over by the browser extension and the profile it resolves to.
// State is kept in memory and mirrored to the key-value store so a restart
// does not require logging in again.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Namespace is the kvstore namespace the session is persisted under.
const Namespace = "session"

// Persisted keys.
const (
	keyNIDAut   = "NID_AUT"
	keyNIDSes   = "NID_SES"
	keyNickname = "nickname"
	keyIDHash   = "userIdHash"
)

// Cookies is the platform authentication cookie pair.
type Cookies struct {
	NIDAut string `json:"NID_AUT"`
	NIDSes string `json:"NID_SES"`
}

// Valid reports whether both cookies are present.
func (c Cookies) Valid() bool {
	return c.NIDAut != "" && c.NIDSes != ""
}

// Header renders the pair as a Cookie request header value.
func (c Cookies) Header() string {
	return fmt.Sprintf("NID_AUT=%s; NID_SES=%s", c.NIDAut, c.NIDSes)
}

// Backend persists the session. *kvstore.DB satisfies it.
type Backend interface {
	SetMany(ctx context.Context, namespace string, values map[string]json.RawMessage) error
	All(ctx context.Context, namespace string) (map[string]json.RawMessage, error)
	Clear(ctx context.Context, namespace string) error
}

// Session is the current platform login.
//
// All exported methods are safe for concurrent use.
type Session struct {
	backend Backend // nil: memory only

	mu       sync.RWMutex
	cookies  Cookies
	idHash   string
	nickname string
}

// New creates an empty Session persisted to b. b may be nil.
func New(b Backend) *Session {
	return &Session{backend: b}
}

// Restore loads a previously persisted session. A missing session is not an error.
func (s *Session) Restore(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	all, err := s.backend.All(ctx, Namespace)
	if err != nil {
		return fmt.Errorf("session: restore: %w", err)
	}

	var c Cookies
	var hash, nick string
	for k, dst := range map[string]*string{
		keyNIDAut:   &c.NIDAut,
		keyNIDSes:   &c.NIDSes,
		keyIDHash:   &hash,
		keyNickname: &nick,
	} {
		raw, ok := all[k]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("session: restore %s: %w", k, err)
		}
	}

	s.mu.Lock()
	s.cookies = c
	s.idHash = hash
	s.nickname = nick
	s.mu.Unlock()

	if c.Valid() {
		slog.Info("session: restored", "nickname", nick)
	}
	return nil
}

// Login replaces the session with verified cookies and the profile they
// belong to, and persists it.
func (s *Session) Login(ctx context.Context, c Cookies, idHash, nickname string) error {
	s.mu.Lock()
	s.cookies = c
	s.idHash = idHash
	s.nickname = nickname
	s.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	values := make(map[string]json.RawMessage, 4)
	for k, v := range map[string]string{
		keyNIDAut:   c.NIDAut,
		keyNIDSes:   c.NIDSes,
		keyIDHash:   idHash,
		keyNickname: nickname,
	} {
		b, _ := json.Marshal(v)
		values[k] = b
	}
	if err := s.backend.SetMany(ctx, Namespace, values); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

// Cookies returns the current cookie pair and whether it is usable.
func (s *Session) Cookies() (Cookies, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cookies, s.cookies.Valid()
}

// ProfileID returns the cached channel id hash, or "" if unknown.
func (s *Session) ProfileID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idHash
}

// Nickname returns the logged-in nickname, or "".
func (s *Session) Nickname() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nickname
}

// SetProfile caches the channel id hash and nickname resolved from the cookies.
func (s *Session) SetProfile(idHash, nickname string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idHash = idHash
	s.nickname = nickname
}

// LoggedIn reports whether a usable cookie pair is held.
func (s *Session) LoggedIn() bool {
	_, ok := s.Cookies()
	return ok
}

// Expire drops the session after the platform rejected it, in memory and in
// the backend. Backend failures are logged only.
func (s *Session) Expire(ctx context.Context) {
	s.mu.Lock()
	s.cookies = Cookies{}
	s.idHash = ""
	s.nickname = ""
	s.mu.Unlock()

	slog.Warn("session: expired, cleared")
	if s.backend == nil {
		return
	}
	if err := s.backend.Clear(ctx, Namespace); err != nil {
		slog.Error("session: failed to clear persisted session", "err", err)
	}
}
