// Package health exposes the standard gRPC health checking protocol
// (grpc.health.v1) for followbell-server, so process supervisors and
// orchestrators can check it with grpc_health_probe.
//
// Three service names are reported:
//   - ""                   : the process itself; SERVING while running
//   - "followbell.feed"    : the aggregation engine; SERVING while running
//   - "followbell.upstream": the platform; SERVING after a successful fetch,
//     NOT_SERVING after a failed one or when no session is stored
//
// Service implements feed.Observer so the upstream status follows every
// fetch. Calls pass through the API key interceptor from package auth.
package health
