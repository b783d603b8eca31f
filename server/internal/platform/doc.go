// Package platform talks to the streaming platform's HTTP APIs on behalf of
// the logged-in channel owner.
//
// Two endpoints are used: the account service, which resolves session
// cookies to the channel's user id hash and nickname, and the channel
// management API, which lists the most recent followers. Client implements
// feed.Fetcher so the aggregation engine can poll it directly.
//
// Requests carry the NID_AUT/NID_SES session cookies. Transient failures
// (network errors, 429, 5xx) are retried with exponential backoff; a 401 or
// 403 expires the stored session. Follower list requests are rate limited to
// one per MinInterval; a caller arriving earlier gets the cached last list.
package platform
