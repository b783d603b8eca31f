// Package api implements the HTTP surface of followbell-server.
//
// New(deps) returns an http.Handler (a chi router) that serves:
//
//	GET  /followers      merged follower feed for the widget
//	POST /test-follower  inject a synthetic follower
//	GET  /follower       the widget page (notifier.html)
//	GET  /public/*       widget static assets
//	POST /auth/cookies   session cookies from the browser extension
//	GET  /cookies        debug dump of stored cookies (dev mode, API key)
//	GET  /settings       widget settings
//	POST /settings       save widget settings
//	GET  /ws/followers   websocket feed (mounted from package ws)
//	GET  /api/v1/health  engine and upstream status
//	GET  /api/v1/queue   live queue entries and their ages
//	GET  /api/v1/alerts  recent new-follower alerts
//	GET  /api/v1/stats   followbell_* counters and gauges
//	GET  /metrics        Prometheus exposition
//
// The widget and extension routes keep the JSON shapes the widget page and
// the extension expect: envelopes carry a "code" field and are always
// answered with HTTP 200. Every route allows any origin.
//
// JSON types are defined in types.go.
package api
