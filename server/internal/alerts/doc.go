// Package alerts forwards newly detected followers to chat webhooks.
//
// Engine implements feed.Observer: every new real follower becomes an Alert
// that is recorded in a bounded history (served by GET /api/v1/alerts) and
// queued for asynchronous delivery. A per-follower cooldown suppresses
// repeats when someone unfollows and follows again in quick succession.
//
// Supported webhook types:
//   - slack  : {"text": ...}
//   - discord: {"content": ...}
//   - teams  : MessageCard
//   - http   : {"alert": <Alert>}
//
// Webhook URLs are read from the environment variables named in the config.
package alerts
