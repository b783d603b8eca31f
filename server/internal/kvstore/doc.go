// Package kvstore is a small namespaced key-value store on SQLite.
//
// It backs the session (platform cookies) and widget settings so both survive
// restarts. Values are opaque JSON documents; callers own their encoding.
package kvstore
