package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"

	"github.com/followbell/followbell/pkg/types"
	"github.com/followbell/followbell/server/internal/feed"
	"github.com/followbell/followbell/server/internal/metrics"
	"github.com/followbell/followbell/server/internal/session"
)

const (
	DefaultChzzkURL     = "https://api.chzzk.naver.com"
	DefaultNaverGameURL = "https://comm-api.game.naver.com"

	DefaultTimeout       = 5 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 200 * time.Millisecond

	userStatusPath = "/nng_main/v1/user/getUserStatus"
	followersPath  = "/manage/v1/channels/%s/followers"

	userAgent = "Mozilla/5.0 (followbell)"
)

var (
	// ErrNoSession is returned when no session cookies are stored.
	ErrNoSession = feed.ErrNoSession

	// ErrSessionExpired is returned when the platform rejects the session
	// cookies (401/403, or a status response without a user id).
	ErrSessionExpired = errors.New("platform: session expired")
)

// Credentials is the session state the client reads and updates.
// *session.Session satisfies it.
type Credentials interface {
	Cookies() (session.Cookies, bool)
	ProfileID() string
	SetProfile(idHash, nickname string)
	Expire(ctx context.Context)
}

// Profile identifies the logged-in account.
type Profile struct {
	IDHash   string
	Nickname string
}

// FollowersPage is one page of the channel's follower list.
type FollowersPage struct {
	Page       int
	Size       int
	TotalCount int
	TotalPages int
	Followers  []types.Follower
}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	ChzzkURL      string
	NaverGameURL  string
	Timeout       time.Duration
	MinInterval   time.Duration // minimum spacing of follower list requests; 0 disables
	RetryAttempts uint
	RetryDelay    time.Duration
	PageSize      int
	Transport     http.RoundTripper // base transport; nil uses http.DefaultTransport
}

// Client is the platform API client. Safe for concurrent use.
type Client struct {
	chzzkURL string
	gameURL  string
	http     *http.Client
	creds    Credentials
	limiter  *rate.Limiter
	attempts uint
	delay    time.Duration
	pageSize int

	mu       sync.Mutex
	last     []types.Follower
	haveLast bool
}

// New creates a Client that authenticates with creds.
func New(creds Credentials, opts Options) *Client {
	if opts.ChzzkURL == "" {
		opts.ChzzkURL = DefaultChzzkURL
	}
	if opts.NaverGameURL == "" {
		opts.NaverGameURL = DefaultNaverGameURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = DefaultRetryAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.PageSize <= 0 {
		opts.PageSize = feed.DefaultPageSize
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &Client{
		chzzkURL: opts.ChzzkURL,
		gameURL:  opts.NaverGameURL,
		http: &http.Client{
			Transport: &headerRoundTripper{base: base},
			Timeout:   opts.Timeout,
		},
		creds:    creds,
		limiter:  rate.NewLimiter(limitFor(opts.MinInterval), 1),
		attempts: opts.RetryAttempts,
		delay:    opts.RetryDelay,
		pageSize: opts.PageSize,
	}
}

// SetMinInterval changes the follower list rate limit at runtime.
func (c *Client) SetMinInterval(d time.Duration) {
	c.limiter.SetLimit(limitFor(d))
}

func limitFor(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

// Verify resolves cookies to the account they belong to without touching
// the stored session.
func (c *Client) Verify(ctx context.Context, cookies session.Cookies) (Profile, error) {
	if !cookies.Valid() {
		return Profile{}, fmt.Errorf("platform: verify: %w", ErrNoSession)
	}
	return c.userStatus(ctx, cookies)
}

// Profile returns the logged-in account, resolving and caching the user id
// hash on first use.
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	cookies, ok := c.creds.Cookies()
	if !ok {
		return Profile{}, ErrNoSession
	}
	if id := c.creds.ProfileID(); id != "" {
		return Profile{IDHash: id}, nil
	}

	p, err := c.userStatus(ctx, cookies)
	if err != nil {
		c.handleErr(ctx, err)
		return Profile{}, err
	}
	c.creds.SetProfile(p.IDHash, p.Nickname)
	return p, nil
}

// Followers fetches one page of the channel's follower list.
func (c *Client) Followers(ctx context.Context, page, size int) (FollowersPage, error) {
	cookies, ok := c.creds.Cookies()
	if !ok {
		return FollowersPage{}, ErrNoSession
	}
	p, err := c.Profile(ctx)
	if err != nil {
		return FollowersPage{}, err
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	q.Set("userNickname", "")
	u := c.chzzkURL + fmt.Sprintf(followersPath, url.PathEscape(p.IDHash)) + "?" + q.Encode()

	var body struct {
		Content *struct {
			Page       int              `json:"page"`
			Size       int              `json:"size"`
			TotalCount int              `json:"totalCount"`
			TotalPages int              `json:"totalPages"`
			Data       []types.Follower `json:"data"`
		} `json:"content"`
	}
	if err := c.getJSON(ctx, "followers", u, cookies, &body); err != nil {
		c.handleErr(ctx, err)
		return FollowersPage{}, err
	}
	if body.Content == nil {
		return FollowersPage{}, errors.New("platform: followers: response has no content")
	}
	return FollowersPage{
		Page:       body.Content.Page,
		Size:       body.Content.Size,
		TotalCount: body.Content.TotalCount,
		TotalPages: body.Content.TotalPages,
		Followers:  body.Content.Data,
	}, nil
}

// Fetch returns the first page of followers, newest first. It implements
// feed.Fetcher. Calls arriving faster than MinInterval get the cached last
// list instead of a new request.
func (c *Client) Fetch(ctx context.Context) ([]types.Follower, error) {
	if _, ok := c.creds.Cookies(); !ok {
		return nil, ErrNoSession
	}

	c.mu.Lock()
	allowed := c.limiter.Allow()
	if !allowed && c.haveLast {
		out := append([]types.Follower(nil), c.last...)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	page, err := c.Followers(ctx, 0, c.pageSize)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.last = append([]types.Follower(nil), page.Followers...)
	c.haveLast = true
	c.mu.Unlock()
	return page.Followers, nil
}

// --- internal ---------------------------------------------------------------

func (c *Client) userStatus(ctx context.Context, cookies session.Cookies) (Profile, error) {
	var body struct {
		Content *struct {
			UserIDHash *string `json:"userIdHash"`
			Nickname   string  `json:"nickname"`
		} `json:"content"`
	}
	if err := c.getJSON(ctx, "user_status", c.gameURL+userStatusPath, cookies, &body); err != nil {
		return Profile{}, err
	}
	if body.Content == nil || body.Content.UserIDHash == nil || *body.Content.UserIDHash == "" {
		return Profile{}, fmt.Errorf("%w: not logged in", ErrSessionExpired)
	}
	return Profile{IDHash: *body.Content.UserIDHash, Nickname: body.Content.Nickname}, nil
}

// handleErr expires the stored session when the platform rejected it.
func (c *Client) handleErr(ctx context.Context, err error) {
	if !errors.Is(err, ErrSessionExpired) {
		return
	}
	slog.Warn("platform: session rejected, clearing stored cookies", "err", err)
	c.creds.Expire(ctx)

	c.mu.Lock()
	c.last, c.haveLast = nil, false
	c.mu.Unlock()
}

// statusError is a non-2xx response.
type statusError struct {
	code int
}

func (e *statusError) Error() string { return fmt.Sprintf("unexpected status %d", e.code) }

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// getJSON performs a GET with the session cookies and decodes the response
// into v, retrying transient failures.
func (c *Client) getJSON(ctx context.Context, endpoint, u string, cookies session.Cookies, v any) error {
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("build request: %w", err))
			}
			req.Header.Set("Cookie", cookies.Header())

			resp, err := c.http.Do(req)
			if err != nil {
				return fmt.Errorf("http get: %w", err)
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
				_, _ = io.Copy(io.Discard, resp.Body)
				return retry.Unrecoverable(fmt.Errorf("%w: status %d", ErrSessionExpired, resp.StatusCode))
			case retryable(resp.StatusCode):
				_, _ = io.Copy(io.Discard, resp.Body)
				return &statusError{code: resp.StatusCode}
			case resp.StatusCode < 200 || resp.StatusCode > 299:
				_, _ = io.Copy(io.Discard, resp.Body)
				return retry.Unrecoverable(&statusError{code: resp.StatusCode})
			}

			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(2*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			metrics.IncUpstreamRetry(endpoint)
			slog.Debug("platform: retrying request", "endpoint", endpoint, "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("platform: %s: %w", endpoint, err)
	}
	return nil
}

// headerRoundTripper sets the headers every platform request needs.
type headerRoundTripper struct {
	base http.RoundTripper
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	return t.base.RoundTrip(req)
}
