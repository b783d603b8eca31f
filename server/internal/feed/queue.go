package feed

import (
	"sync"
	"time"

	"github.com/followbell/followbell/pkg/types"
)

// DefaultTTL is how long a queued event stays eligible for display.
const DefaultTTL = 30 * time.Second

// Entry is one queued notification together with the time it was enqueued.
type Entry struct {
	Follower   types.Follower
	EnqueuedAt time.Time
}

// Queue is a FIFO of notification entries, oldest at the front.
// Entries leave the queue only from the front, once older than the TTL.
//
// All exported methods are safe for concurrent use.
type Queue struct {
	mu      sync.RWMutex
	entries []Entry
	ttl     time.Duration
}

// NewQueue creates an empty Queue whose entries expire after ttl.
func NewQueue(ttl time.Duration) *Queue {
	return &Queue{ttl: ttl}
}

// Push appends f to the back of the queue with enqueue time at.
func (q *Queue) Push(f types.Follower, at time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, Entry{Follower: f, EnqueuedAt: at})
}

// EvictExpired pops entries from the front while their age at now exceeds the
// TTL and stops at the first entry that is still live. Entries are pushed in
// time order, so nothing behind a live entry can be expired.
// It returns the number of entries removed.
func (q *Queue) EvictExpired(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for n < len(q.entries) && now.Sub(q.entries[n].EnqueuedAt) > q.ttl {
		n++
	}
	if n == 0 {
		return 0
	}
	// Zero the popped slots so the followers can be collected.
	clear(q.entries[:n])
	q.entries = q.entries[n:]
	if len(q.entries) == 0 {
		q.entries = nil
	}
	return n
}

// Followers returns the queued followers front to back. It does not evict.
func (q *Queue) Followers() []types.Follower {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]types.Follower, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e.Follower)
	}
	return out
}

// Entries returns a copy of the queued entries front to back.
func (q *Queue) Entries() []Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len returns the number of queued entries, including expired ones that have
// not been evicted yet.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// TTL returns the configured expiry window.
func (q *Queue) TTL() time.Duration {
	return q.ttl
}
