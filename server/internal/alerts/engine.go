package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/followbell/followbell/pkg/types"
	"github.com/followbell/followbell/server/internal/config"
)

const (
	defaultBufferSize  = 64
	defaultHistorySize = 100
	deliveryTimeout    = 10 * time.Second

	// pruneThreshold is the cooldown map size above which expired entries are swept.
	pruneThreshold = 1024
)

// Alert is one new-follower notification.
type Alert struct {
	ID             string    `json:"id"`
	FollowerID     string    `json:"follower_id"`
	Nickname       string    `json:"nickname"`
	FollowingSince string    `json:"following_since"`
	Message        string    `json:"message"`
	FiredAt        time.Time `json:"fired_at"`
}

// Engine forwards newly detected followers to the configured webhooks.
// Notify is non-blocking; when the delivery buffer is full the oldest
// pending alert is dropped. Run must be called in a goroutine to deliver.
//
// Engine is safe for concurrent use. It implements feed.Observer.
type Engine struct {
	buf     chan *Alert
	client  *http.Client
	now     func() time.Time
	maxHist int

	mu       sync.Mutex
	webhooks []config.WebhookConfig
	cooldown time.Duration
	lastFire map[string]time.Time // key: follower id
	history  []*Alert             // oldest first
}

// New creates an Engine from the alert configuration. An Engine without
// webhooks still records history.
func New(cfg config.AlertsConfig) *Engine {
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	hist := cfg.HistorySize
	if hist <= 0 {
		hist = defaultHistorySize
	}
	return &Engine{
		buf:      make(chan *Alert, size),
		client:   &http.Client{Timeout: deliveryTimeout},
		now:      time.Now,
		maxHist:  hist,
		webhooks: cfg.Webhooks,
		cooldown: cfg.Cooldown,
		lastFire: make(map[string]time.Time),
	}
}

// Reconfigure swaps the webhook targets and cooldown, e.g. after a config reload.
func (e *Engine) Reconfigure(cfg config.AlertsConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.webhooks = cfg.Webhooks
	e.cooldown = cfg.Cooldown
}

// Notify records an alert for f and queues it for delivery. It returns false
// if f already alerted within the cooldown window.
func (e *Engine) Notify(f types.Follower) bool {
	now := e.now()
	id := f.ID()

	e.mu.Lock()
	if last, ok := e.lastFire[id]; ok && now.Sub(last) < e.cooldown {
		e.mu.Unlock()
		slog.Debug("alerts: suppressed by cooldown", "id", id)
		return false
	}
	e.lastFire[id] = now
	if len(e.lastFire) > pruneThreshold {
		e.pruneLocked(now)
	}

	a := &Alert{
		ID:             uuid.NewString(),
		FollowerID:     id,
		Nickname:       f.User.Nickname,
		FollowingSince: f.FollowingSince,
		Message:        fmt.Sprintf("%s님이 팔로우했습니다", f.User.Nickname),
		FiredAt:        now,
	}
	e.history = append(e.history, a)
	if len(e.history) > e.maxHist {
		e.history = e.history[len(e.history)-e.maxHist:]
	}
	e.mu.Unlock()

	e.enqueue(a)
	return true
}

// enqueue adds a to the delivery buffer, evicting the oldest pending alert if full.
func (e *Engine) enqueue(a *Alert) {
	select {
	case e.buf <- a:
	default:
		select {
		case old := <-e.buf:
			slog.Warn("alerts: buffer full, dropped oldest alert",
				"dropped", old.FollowerID, "buffer_cap", cap(e.buf))
		default:
		}
		select {
		case e.buf <- a:
		default:
			slog.Warn("alerts: buffer full, dropped alert", "id", a.FollowerID)
		}
	}
}

// Recent returns copies of the recorded alerts, newest first.
func (e *Engine) Recent() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Alert, 0, len(e.history))
	for i := len(e.history) - 1; i >= 0; i-- {
		cp := *e.history[i]
		out = append(out, &cp)
	}
	return out
}

// Run delivers queued alerts until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-e.buf:
			e.deliver(ctx, a)
		}
	}
}

func (e *Engine) pruneLocked(now time.Time) {
	for id, t := range e.lastFire {
		if now.Sub(t) >= e.cooldown {
			delete(e.lastFire, id)
		}
	}
}

// OnNewFollower implements feed.Observer.
func (e *Engine) OnNewFollower(f types.Follower) { e.Notify(f) }

func (e *Engine) OnFetch(error)                 {}
func (e *Engine) OnTestInjected(types.Follower) {}
func (e *Engine) OnEvict(string, int)           {}
