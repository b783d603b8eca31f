package feed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/followbell/followbell/pkg/types"
)

const (
	// TestIDPrefix marks synthetic followers produced by NewTestFollower.
	TestIDPrefix = "test_"

	// DefaultTestNickname is the placeholder display name of a test follower.
	DefaultTestNickname = "테스트 유저"

	// followingSinceLayout is the human readable timestamp shown by the widget.
	followingSinceLayout = "2006-01-02 15:04:05"
)

// ErrMalformedTestToken is returned by ParseTestToken for ids that do not have
// the "test_<millis>_<uuid>" shape.
var ErrMalformedTestToken = errors.New("feed: malformed test token")

// NewTestFollower fabricates a synthetic follower created at now.
// The id has the form "test_<epoch millis>_<uuid>" and is unique per call;
// the embedded millis are for display and diagnostics only.
func NewTestFollower(now time.Time, nickname string) (types.Follower, error) {
	token, err := uuid.NewRandom()
	if err != nil {
		return types.Follower{}, fmt.Errorf("feed: generate test token: %w", err)
	}
	if nickname == "" {
		nickname = DefaultTestNickname
	}
	return types.Follower{
		User: types.User{
			IDHash:   fmt.Sprintf("%s%d_%s", TestIDPrefix, now.UnixMilli(), token),
			Nickname: nickname,
		},
		FollowingSince: now.Local().Format(followingSinceLayout),
	}, nil
}

// IsTestID reports whether id belongs to a synthetic follower.
func IsTestID(id string) bool {
	return strings.HasPrefix(id, TestIDPrefix)
}

// ParseTestToken extracts the creation time embedded in a synthetic id.
// Queue eviction does not depend on it; entries carry their own EnqueuedAt.
func ParseTestToken(id string) (time.Time, error) {
	rest, ok := strings.CutPrefix(id, TestIDPrefix)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTestToken, id)
	}
	millis, _, _ := strings.Cut(rest, "_")
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTestToken, id)
	}
	return time.UnixMilli(ms), nil
}
