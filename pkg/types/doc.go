// Package types defines shared Go types used across the server packages.
// Follower is the canonical in-memory representation of one follower; its
// JSON shape matches both the platform payload and what the widget renders.
package types
