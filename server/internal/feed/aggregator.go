package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/followbell/followbell/pkg/types"
)

// DefaultPageSize is the size reported in every snapshot envelope.
const DefaultPageSize = 10

// Queue names passed to Observer.OnEvict.
const (
	QueueReal = "real"
	QueueTest = "test"
)

var (
	// ErrUpstreamUnavailable wraps every failure to fetch the follower list.
	// It is never fatal: the snapshot is served from the queues alone.
	ErrUpstreamUnavailable = errors.New("feed: upstream unavailable")

	// ErrNoSession is returned by a Fetcher that has no valid platform
	// session to fetch with.
	ErrNoSession = errors.New("feed: no valid upstream session")
)

// Fetcher returns the channel's current follower list from the platform.
// Errors are expected (expired session, network failure) and are not fatal.
type Fetcher interface {
	Fetch(ctx context.Context) ([]types.Follower, error)
}

// Observer is notified of engine events. Callbacks run synchronously on the
// request goroutine and must not block.
type Observer interface {
	// OnFetch is called after every upstream fetch attempt; err is nil on success.
	OnFetch(err error)
	// OnNewFollower is called once for every newly detected real follower.
	OnNewFollower(f types.Follower)
	// OnTestInjected is called for every synthetic follower added.
	OnTestInjected(f types.Follower)
	// OnEvict is called when n > 0 entries were evicted from the named queue.
	OnEvict(queue string, n int)
}

// Snapshot is the merged view served to the widget on each poll.
type Snapshot struct {
	Page        int
	Size        int
	Followers   []types.Follower
	GeneratedAt time.Time
}

// Pending is the content of both queues at one instant, front to back.
type Pending struct {
	At   time.Time
	Real []Entry
	Test []Entry
}

// Stats describes the engine's current state.
type Stats struct {
	Known       int
	RealQueued  int
	TestQueued  int
	LastFetchAt time.Time
	LastFetchOK bool
	LastErr     string
}

// Aggregator owns the known-follower set and both event queues.
// One Aggregator is built at startup and shared by all request handlers.
//
// All exported methods are safe for concurrent use.
type Aggregator struct {
	fetcher Fetcher
	known   *KnownSet
	real    *Queue
	test    *Queue

	ttl          time.Duration
	pageSize     int
	testNickname string
	now          func() time.Time // injectable for deterministic tests

	obsMu     sync.RWMutex
	observers []Observer

	// ingestMu spans reconcile and enqueue so concurrent polls cannot both
	// treat the same follower as new. Enqueue times are read under ingestMu
	// and injectMu so each queue is pushed in time order.
	ingestMu sync.Mutex
	injectMu sync.Mutex

	lastMu      sync.RWMutex
	lastPolled  []types.Follower
	lastFetchAt time.Time
	lastErr     error
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTTL sets the expiry window of both queues. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(a *Aggregator) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithPageSize sets the size reported in the snapshot envelope.
func WithPageSize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.pageSize = n
		}
	}
}

// WithTestNickname sets the display name given to synthetic followers.
func WithTestNickname(name string) Option {
	return func(a *Aggregator) { a.testNickname = name }
}

// WithObserver registers o for engine events. May be given more than once.
func WithObserver(o Observer) Option {
	return func(a *Aggregator) {
		if o != nil {
			a.observers = append(a.observers, o)
		}
	}
}

// New creates an Aggregator that polls f. A nil f means no upstream at all;
// snapshots are then served from the queues only.
func New(f Fetcher, opts ...Option) *Aggregator {
	a := &Aggregator{
		fetcher:      f,
		known:        NewKnownSet(),
		ttl:          DefaultTTL,
		pageSize:     DefaultPageSize,
		testNickname: DefaultTestNickname,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.real = NewQueue(a.ttl)
	a.test = NewQueue(a.ttl)
	return a
}

// AddObserver registers o for engine events after construction.
func (a *Aggregator) AddObserver(o Observer) {
	if o == nil {
		return
	}
	a.obsMu.Lock()
	a.observers = append(a.observers, o)
	a.obsMu.Unlock()
}

// Snapshot fetches the follower list (best effort), records newly seen
// followers in the real queue, evicts expired entries from both queues and
// returns the combined view. Upstream failures only shrink the result.
func (a *Aggregator) Snapshot(ctx context.Context) Snapshot {
	polled, err := a.fetch(ctx)

	var now time.Time
	if err == nil {
		now = a.ingest(polled)
	} else {
		now = a.now()
	}

	a.lastMu.Lock()
	a.lastPolled = polled
	a.lastFetchAt = now
	a.lastErr = err
	a.lastMu.Unlock()

	a.evict(now)
	return a.combine(polled, now)
}

// Current evicts expired entries and combines the queues with the result of
// the most recent poll, without fetching.
func (a *Aggregator) Current() Snapshot {
	a.lastMu.RLock()
	polled := a.lastPolled
	a.lastMu.RUnlock()

	now := a.now()
	a.evict(now)
	return a.combine(polled, now)
}

// InjectTest appends a synthetic follower to the test queue and returns it.
// Test followers bypass the known set; they are unique by construction.
func (a *Aggregator) InjectTest() (types.Follower, error) {
	f, err := a.pushTest()
	if err != nil {
		return types.Follower{}, err
	}

	slog.Info("feed: test follower added", "nickname", f.User.Nickname, "id", f.ID())
	a.notify(func(o Observer) { o.OnTestInjected(f) })
	return f, nil
}

// Run evicts expired entries periodically so memory is released while no
// widget is polling. It never contacts the platform. Run blocks until ctx is
// cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	interval := a.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.evict(a.now())
		}
	}
}

// Stats reports the current set and queue sizes and the outcome of the last fetch.
func (a *Aggregator) Stats() Stats {
	a.lastMu.RLock()
	defer a.lastMu.RUnlock()

	st := Stats{
		Known:       a.known.Len(),
		RealQueued:  a.real.Len(),
		TestQueued:  a.test.Len(),
		LastFetchAt: a.lastFetchAt,
		LastFetchOK: !a.lastFetchAt.IsZero() && a.lastErr == nil,
	}
	if a.lastErr != nil {
		st.LastErr = a.lastErr.Error()
	}
	return st
}

// Pending evicts expired entries and returns what remains queued.
func (a *Aggregator) Pending() Pending {
	now := a.now()
	a.evict(now)
	return Pending{At: now, Real: a.real.Entries(), Test: a.test.Entries()}
}

// TTL returns the expiry window of both queues.
func (a *Aggregator) TTL() time.Duration {
	return a.ttl
}

// --- internal ---------------------------------------------------------------

func (a *Aggregator) fetch(ctx context.Context) ([]types.Follower, error) {
	if a.fetcher == nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, ErrNoSession)
	}

	polled, err := a.fetcher.Fetch(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		if errors.Is(err, ErrNoSession) {
			slog.Debug("feed: no session, serving queues only")
		} else {
			slog.Warn("feed: failed to fetch followers, serving queues only", "err", err)
		}
		polled = nil
	}

	a.notify(func(o Observer) { o.OnFetch(err) })
	return polled, err
}

// ingest reconciles the known set against polled, enqueues every newly
// seen follower and returns the enqueue time.
func (a *Aggregator) ingest(polled []types.Follower) time.Time {
	now, added := a.enqueueNew(polled)
	for _, f := range added {
		slog.Info("feed: new follower detected", "nickname", f.User.Nickname, "id", f.ID())
		a.notify(func(o Observer) { o.OnNewFollower(f) })
	}
	return now
}

// enqueueNew is the ingest critical section.
func (a *Aggregator) enqueueNew(polled []types.Follower) (time.Time, []types.Follower) {
	ids := make([]string, len(polled))
	for i, f := range polled {
		ids[i] = f.ID()
	}

	a.ingestMu.Lock()
	defer a.ingestMu.Unlock()

	now := a.now()
	newIDs := a.known.Reconcile(ids)
	if len(newIDs) == 0 {
		return now, nil
	}
	fresh := make(map[string]struct{}, len(newIDs))
	for _, id := range newIDs {
		fresh[id] = struct{}{}
	}
	var added []types.Follower
	for _, f := range polled {
		if _, ok := fresh[f.ID()]; !ok {
			continue
		}
		// A duplicated id in one poll result is enqueued once.
		delete(fresh, f.ID())
		a.real.Push(f, now)
		added = append(added, f)
	}
	return now, added
}

func (a *Aggregator) pushTest() (types.Follower, error) {
	a.injectMu.Lock()
	defer a.injectMu.Unlock()

	now := a.now()
	f, err := NewTestFollower(now, a.testNickname)
	if err != nil {
		return types.Follower{}, err
	}
	a.test.Push(f, now)
	return f, nil
}

func (a *Aggregator) evict(now time.Time) {
	if n := a.real.EvictExpired(now); n > 0 {
		slog.Debug("feed: evicted expired real events", "count", n)
		a.notify(func(o Observer) { o.OnEvict(QueueReal, n) })
	}
	if n := a.test.EvictExpired(now); n > 0 {
		slog.Debug("feed: evicted expired test events", "count", n)
		a.notify(func(o Observer) { o.OnEvict(QueueTest, n) })
	}
}

func (a *Aggregator) notify(fn func(Observer)) {
	a.obsMu.RLock()
	obs := a.observers
	a.obsMu.RUnlock()
	for _, o := range obs {
		fn(o)
	}
}

func (a *Aggregator) combine(polled []types.Follower, now time.Time) Snapshot {
	return Snapshot{
		Page:        0,
		Size:        a.pageSize,
		Followers:   Combine(a.test.Followers(), a.real.Followers(), polled),
		GeneratedAt: now,
	}
}
