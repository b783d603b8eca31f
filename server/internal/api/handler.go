package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/followbell/followbell/pkg/types"
	"github.com/followbell/followbell/server/internal/alerts"
	"github.com/followbell/followbell/server/internal/auth"
	"github.com/followbell/followbell/server/internal/feed"
	"github.com/followbell/followbell/server/internal/metrics"
	"github.com/followbell/followbell/server/internal/platform"
	"github.com/followbell/followbell/server/internal/session"
	"github.com/followbell/followbell/server/internal/settings"
)

// maxBodyBytes bounds request bodies on the POST routes.
const maxBodyBytes = 64 << 10

// Engine is the follower aggregation engine. *feed.Aggregator satisfies it.
type Engine interface {
	Snapshot(ctx context.Context) feed.Snapshot
	InjectTest() (types.Follower, error)
	Stats() feed.Stats
	Pending() feed.Pending
	TTL() time.Duration
}

// Verifier resolves session cookies to an account. *platform.Client satisfies it.
type Verifier interface {
	Verify(ctx context.Context, c session.Cookies) (platform.Profile, error)
}

// Session is the stored platform login. *session.Session satisfies it.
type Session interface {
	Login(ctx context.Context, c session.Cookies, idHash, nickname string) error
	Cookies() (session.Cookies, bool)
	LoggedIn() bool
	Nickname() string
}

// SettingsStore is the widget settings store. *settings.Store satisfies it.
type SettingsStore interface {
	Load(ctx context.Context) (map[string]any, error)
	Save(ctx context.Context, payload json.RawMessage) error
}

// AlertLog lists recent alerts. *alerts.Engine satisfies it.
type AlertLog interface {
	Recent() []*alerts.Alert
}

// Deps are the collaborators the handler serves from. Engine is required;
// routes whose collaborator is nil answer 503.
type Deps struct {
	Engine   Engine
	Platform Verifier
	Session  Session
	Settings SettingsStore
	Alerts   AlertLog

	// Gatherer backs /api/v1/stats; nil uses the default registry.
	Gatherer prometheus.Gatherer

	// WS is mounted at /ws/followers when non-nil.
	WS http.Handler

	// Guard protects the /cookies debug route.
	Guard auth.Guard

	PagesDir  string
	PublicDir string
	PageSize  int

	// Dev enables GET /cookies.
	Dev bool
}

// Handler is the HTTP handler for every route of the server.
type Handler struct {
	d      Deps
	router chi.Router
}

// New creates a Handler and registers all routes.
func New(d Deps) http.Handler {
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.PageSize <= 0 {
		d.PageSize = feed.DefaultPageSize
	}
	h := &Handler{d: d, router: chi.NewRouter()}

	r := h.router
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/followers", h.followers)
	r.Post("/test-follower", h.testFollower)
	r.Get("/follower", h.notifierPage)
	r.Handle("/public/*", http.StripPrefix("/public/", http.FileServer(http.Dir(d.PublicDir))))

	r.Post("/auth/cookies", h.receiveCookies)
	if d.Dev {
		r.With(d.Guard.Middleware).Get("/cookies", h.cookies)
	}
	r.Get("/settings", h.loadSettings)
	r.Post("/settings", h.saveSettings)

	if d.WS != nil {
		r.Handle("/ws/followers", d.WS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/queue", h.queue)
		r.Get("/alerts", h.alerts)
		r.Get("/stats", h.stats)
	})
	r.Handle("/metrics", metrics.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// followers returns GET /followers: test events, then new followers, then
// the rest of the last upstream page. Upstream failures never surface here.
func (h *Handler) followers(w http.ResponseWriter, r *http.Request) {
	snap := h.recoverSnapshot(func() feed.Snapshot { return h.d.Engine.Snapshot(r.Context()) })
	jsonResp(w, http.StatusOK, BuildFollowers(snap))
}

// recoverSnapshot runs fn and turns a panic into an empty, well-formed feed.
func (h *Handler) recoverSnapshot(fn func() feed.Snapshot) (snap feed.Snapshot) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("api: snapshot failed, serving empty feed", "panic", rec)
			snap = feed.Snapshot{Page: 0, Size: h.d.PageSize, GeneratedAt: time.Now()}
		}
	}()
	return fn()
}

// testFollower returns POST /test-follower.
func (h *Handler) testFollower(w http.ResponseWriter, r *http.Request) {
	if _, err := h.d.Engine.InjectTest(); err != nil {
		slog.Error("api: inject test follower", "err", err)
		jsonResp(w, http.StatusInternalServerError, TestFollowerResponse{Success: false, Message: err.Error()})
		return
	}
	jsonResp(w, http.StatusOK, TestFollowerResponse{Success: true, Message: "Test follower added to queue"})
}

// notifierPage returns GET /follower, the widget page loaded by OBS.
func (h *Handler) notifierPage(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.d.PagesDir, "notifier.html")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("api: notifier page not found", "path", path, "err", err)
		http.Error(w, "notifier.html not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

// receiveCookies returns POST /auth/cookies. The extension posts the
// session cookies; they are verified against the platform before storing.
func (h *Handler) receiveCookies(w http.ResponseWriter, r *http.Request) {
	if h.d.Platform == nil || h.d.Session == nil {
		jsonErr(w, http.StatusServiceUnavailable, "login unavailable")
		return
	}

	var c session.Cookies
	if err := decodeBody(r, &c); err != nil || !c.Valid() {
		jsonResp(w, http.StatusOK, AuthResponse{Code: http.StatusBadRequest, Message: "Missing NID_AUT or NID_SES"})
		return
	}
	slog.Info("api: received cookies from extension")

	p, err := h.d.Platform.Verify(r.Context(), c)
	if err != nil {
		slog.Warn("api: cookie verification failed", "err", err)
		jsonResp(w, http.StatusOK, AuthResponse{Code: http.StatusUnauthorized, Message: "Verification failed: " + err.Error()})
		return
	}

	if err := h.d.Session.Login(r.Context(), c, p.IDHash, p.Nickname); err != nil {
		// The login is live in memory; only persistence failed.
		slog.Error("api: failed to save session", "err", err)
	}
	slog.Info("api: verified user", "nickname", p.Nickname, "id", p.IDHash)
	jsonResp(w, http.StatusOK, AuthResponse{Code: http.StatusOK, Message: "Success", Nickname: p.Nickname})
}

// cookies returns GET /cookies.
func (h *Handler) cookies(w http.ResponseWriter, r *http.Request) {
	if h.d.Session == nil {
		jsonErr(w, http.StatusServiceUnavailable, "session unavailable")
		return
	}
	c, _ := h.d.Session.Cookies()
	jsonResp(w, http.StatusOK, CookiesResponse{NIDAut: c.NIDAut, NIDSes: c.NIDSes, LoggedIn: h.d.Session.LoggedIn()})
}

// loadSettings returns GET /settings.
func (h *Handler) loadSettings(w http.ResponseWriter, r *http.Request) {
	if h.d.Settings == nil {
		jsonErr(w, http.StatusServiceUnavailable, "settings unavailable")
		return
	}
	s, err := h.d.Settings.Load(r.Context())
	if err != nil {
		slog.Error("api: load settings, serving defaults", "err", err)
		s = settings.Defaults()
	}
	jsonResp(w, http.StatusOK, s)
}

// saveSettings returns POST /settings.
func (h *Handler) saveSettings(w http.ResponseWriter, r *http.Request) {
	if h.d.Settings == nil {
		jsonErr(w, http.StatusServiceUnavailable, "settings unavailable")
		return
	}
	var raw json.RawMessage
	if err := decodeBody(r, &raw); err != nil {
		jsonResp(w, http.StatusOK, SaveSettingsResponse{Error: "Invalid settings format"})
		return
	}
	if err := h.d.Settings.Save(r.Context(), raw); err != nil {
		msg := "Failed to save settings"
		if errors.Is(err, settings.ErrInvalidFormat) {
			msg = "Invalid settings format"
		} else {
			slog.Error("api: save settings", "err", err)
		}
		jsonResp(w, http.StatusOK, SaveSettingsResponse{Error: msg})
		return
	}
	jsonResp(w, http.StatusOK, SaveSettingsResponse{Success: true})
}

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	st := h.d.Engine.Stats()
	resp := HealthResponse{
		Status:     "ok",
		Upstream:   toUpstream(st),
		Known:      st.Known,
		RealQueued: st.RealQueued,
		TestQueued: st.TestQueued,
		TTLSeconds: h.d.Engine.TTL().Seconds(),
	}
	if h.d.Session != nil {
		resp.LoggedIn = h.d.Session.LoggedIn()
		resp.Nickname = h.d.Session.Nickname()
	}
	jsonResp(w, http.StatusOK, resp)
}

// queue returns GET /api/v1/queue.
func (h *Handler) queue(w http.ResponseWriter, r *http.Request) {
	p := h.d.Engine.Pending()
	jsonResp(w, http.StatusOK, QueueResponse{
		TTLSeconds: h.d.Engine.TTL().Seconds(),
		Real:       toQueued(p.Real, p.At),
		Test:       toQueued(p.Test, p.At),
	})
}

// alerts returns GET /api/v1/alerts, newest first.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if h.d.Alerts == nil {
		jsonResp(w, http.StatusOK, []struct{}{})
		return
	}
	jsonResp(w, http.StatusOK, h.d.Alerts.Recent())
}

// stats returns GET /api/v1/stats.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	out, err := metrics.Stats(h.d.Gatherer)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, out)
}

// --- helpers ----------------------------------------------------------------

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
