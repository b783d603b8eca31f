// Package auth guards the admin surfaces of followbell-server with an API key.
//
// A Guard is built from the configured mode, header name and expected key.
// UnaryInterceptor protects the gRPC health service; Middleware protects
// HTTP routes (the debug cookie dump) and plugs into chi's r.With/r.Use.
//
// When mode != "apikey" or the key is empty every request passes through,
// which is the default for a local install. The widget and extension routes
// are never guarded: the browser extension does not know the key.
package auth
