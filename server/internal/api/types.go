package api

import (
	"log/slog"
	"time"

	"github.com/followbell/followbell/pkg/types"
	"github.com/followbell/followbell/server/internal/feed"
)

// FollowersResponse is the envelope for GET /followers and the websocket feed.
type FollowersResponse struct {
	Code    int              `json:"code"`
	Message string           `json:"message"`
	Content FollowersContent `json:"content"`
}

// FollowersContent is the page of followers inside FollowersResponse.
type FollowersContent struct {
	Page int              `json:"page"`
	Size int              `json:"size"`
	Data []types.Follower `json:"data"`
}

// BuildFollowers wraps a snapshot in the widget envelope. Data is never null.
func BuildFollowers(s feed.Snapshot) FollowersResponse {
	data := s.Followers
	if data == nil {
		data = []types.Follower{}
	}
	return FollowersResponse{
		Code:    200,
		Message: "Success",
		Content: FollowersContent{Page: s.Page, Size: s.Size, Data: data},
	}
}

// TestFollowerResponse is the payload for POST /test-follower.
type TestFollowerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AuthResponse is the payload for POST /auth/cookies.
type AuthResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Nickname string `json:"nickname,omitempty"`
}

// SaveSettingsResponse is the payload for POST /settings.
type SaveSettingsResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// CookiesResponse is the payload for GET /cookies.
type CookiesResponse struct {
	NIDAut   string `json:"NID_AUT"`
	NIDSes   string `json:"NID_SES"`
	LoggedIn bool   `json:"loggedIn"`
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status     string         `json:"status"`
	LoggedIn   bool           `json:"logged_in"`
	Nickname   string         `json:"nickname,omitempty"`
	Upstream   UpstreamStatus `json:"upstream"`
	Known      int            `json:"known"`
	RealQueued int            `json:"real_queued"`
	TestQueued int            `json:"test_queued"`
	TTLSeconds float64        `json:"ttl_seconds"`
}

// QueueResponse is the payload for GET /api/v1/queue.
type QueueResponse struct {
	TTLSeconds float64       `json:"ttl_seconds"`
	Real       []QueuedEvent `json:"real"`
	Test       []QueuedEvent `json:"test"`
}

// QueuedEvent is one live queue entry.
type QueuedEvent struct {
	ID         string  `json:"id"`
	Nickname   string  `json:"nickname"`
	EnqueuedAt string  `json:"enqueued_at"`
	AgeSeconds float64 `json:"age_seconds"`
	// CreatedAt is the time embedded in a synthetic id; empty for real followers.
	CreatedAt string `json:"created_at,omitempty"`
}

func toQueued(entries []feed.Entry, now time.Time) []QueuedEvent {
	out := make([]QueuedEvent, 0, len(entries))
	for _, e := range entries {
		q := QueuedEvent{
			ID:         e.Follower.ID(),
			Nickname:   e.Follower.User.Nickname,
			EnqueuedAt: e.EnqueuedAt.UTC().Format(time.RFC3339Nano),
			AgeSeconds: now.Sub(e.EnqueuedAt).Seconds(),
		}
		if feed.IsTestID(q.ID) {
			if created, err := feed.ParseTestToken(q.ID); err == nil {
				q.CreatedAt = created.UTC().Format(time.RFC3339Nano)
			} else {
				slog.Debug("api: queued test id without timestamp", "id", q.ID, "err", err)
			}
		}
		out = append(out, q)
	}
	return out
}

// UpstreamStatus describes the most recent platform fetch.
type UpstreamStatus struct {
	State       string `json:"state"` // "ok" | "error" | "unknown"
	LastFetchAt string `json:"last_fetch_at,omitempty"`
	Error       string `json:"error,omitempty"`
}

func toUpstream(st feed.Stats) UpstreamStatus {
	u := UpstreamStatus{State: "unknown", Error: st.LastErr}
	if st.LastFetchAt.IsZero() {
		return u
	}
	u.LastFetchAt = st.LastFetchAt.UTC().Format(time.RFC3339)
	if st.LastFetchOK {
		u.State = "ok"
	} else {
		u.State = "error"
	}
	return u
}

type errorResponse struct {
	Error string `json:"error"`
}
