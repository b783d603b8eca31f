// Package ws pushes the follower feed to widgets over WebSocket.
//
// Hub manages a set of connected clients and broadcasts the current feed to
// all of them every interval, and immediately whenever a new or test
// follower is recorded (Hub implements feed.Observer). Broadcasts read the
// engine's Current view and never trigger an upstream fetch; the widget's
// HTTP polling remains the only thing that contacts the platform.
//
// Message format sent to clients:
//
//	{
//	  "event": "followers",
//	  "data":  { /* same envelope as GET /followers */ }
//	}
//
// The upgrader accepts all origins, like the HTTP routes. The server mounts
// the hub at /ws/followers.
package ws
