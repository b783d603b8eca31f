// Package portscan binds the first free TCP port in a range. The browser
// extension finds the server by probing the same range, so the server must
// not fail just because its preferred port is taken.
package portscan

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
)

// ErrNoFreePort is returned when every port in the range is taken.
var ErrNoFreePort = errors.New("portscan: no free port in range")

// Listen tries host:start, host:start+1, ... for count ports and returns a
// listener on the first one that binds.
func Listen(host string, start, count int) (net.Listener, error) {
	var lastErr error
	for port := start; port < start+count && port <= 65535; port++ {
		lis, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			if port != start {
				slog.Info("portscan: preferred port busy, using next free port", "preferred", start, "port", port)
			}
			return lis, nil
		}
		lastErr = err
		slog.Debug("portscan: port unavailable", "port", port, "err", err)
	}
	if lastErr == nil {
		return nil, fmt.Errorf("%w: %d-%d", ErrNoFreePort, start, start+count-1)
	}
	return nil, fmt.Errorf("%w: %d-%d: %w", ErrNoFreePort, start, start+count-1, lastErr)
}

// Port returns the TCP port lis is bound to, or 0.
func Port(lis net.Listener) int {
	if a, ok := lis.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}
