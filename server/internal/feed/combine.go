package feed

import "github.com/followbell/followbell/pkg/types"

// Combine merges the three sources into one list with no duplicate id hash.
//
// Order: test queue first (operator triggered, expected to show immediately),
// then the real queue in detection order, then whatever the poll result still
// reports that neither queue holds. The first occurrence of an id wins.
func Combine(test, real, polled []types.Follower) []types.Follower {
	out := make([]types.Follower, 0, len(test)+len(real)+len(polled))
	seen := make(map[string]struct{}, cap(out))

	add := func(src []types.Follower) {
		for _, f := range src {
			id := f.ID()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, f)
		}
	}

	add(test)
	add(real)
	add(polled)
	return out
}
