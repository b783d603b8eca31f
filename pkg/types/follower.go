package types

// User is the account half of a Follower.
type User struct {
	// IDHash is the platform's stable per-account key. Dedup is keyed on it alone.
	IDHash          string  `json:"userIdHash"`
	Nickname        string  `json:"nickname"`
	ProfileImageURL *string `json:"profileImageUrl"`
}

// Follower is one follower of the channel as reported by the platform, or a
// synthetic one produced for widget previews.
type Follower struct {
	User User `json:"user"`

	// FollowingSince is the platform-provided timestamp. Display only.
	FollowingSince string `json:"followingSince"`
}

// ID returns the dedup key of f.
func (f Follower) ID() string { return f.User.IDHash }
