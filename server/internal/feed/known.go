package feed

import "sync"

// KnownSet is the set of follower id hashes that have already been announced.
//
// All exported methods are safe for concurrent use.
type KnownSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewKnownSet returns an empty KnownSet.
func NewKnownSet() *KnownSet {
	return &KnownSet{ids: make(map[string]struct{})}
}

// Reconcile makes the set equal to current and returns the ids that were not
// in the set before, in the order they appear in current. Ids that disappeared
// upstream (unfollows) are dropped, so a later re-follow is reported again.
func (k *KnownSet) Reconcile(current []string) []string {
	present := make(map[string]struct{}, len(current))
	for _, id := range current {
		present[id] = struct{}{}
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	for id := range k.ids {
		if _, ok := present[id]; !ok {
			delete(k.ids, id)
		}
	}

	var newlySeen []string
	for _, id := range current {
		if _, ok := k.ids[id]; ok {
			continue
		}
		k.ids[id] = struct{}{}
		newlySeen = append(newlySeen, id)
	}
	return newlySeen
}

// Contains reports whether id is in the set.
func (k *KnownSet) Contains(id string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.ids[id]
	return ok
}

// Len returns the number of known ids.
func (k *KnownSet) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.ids)
}
