// Package config loads the server configuration from config.yaml, overlaid
// with FOLLOWBELL_* environment variables.
//
// Sections:
//   - server: HTTP port and scan range, gRPC health port, auth, log level,
//     static directories, SQLite path, dev mode
//   - feed: queue TTL (30s), page size, websocket broadcast interval
//   - platform: upstream URLs, request timeout, minimum poll interval, retries
//   - alerts: webhook targets, per-follower cooldown, buffer and history sizes
//
// Load(path) applies defaults, then the file (if present), then environment
// overrides, then validates. Watch reloads the file on change.
package config
