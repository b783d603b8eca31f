package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ModeAPIKey enables key checks; any other mode disables them.
const ModeAPIKey = "apikey"

// Guard checks an API key carried in a header (HTTP) or metadata key (gRPC).
type Guard struct {
	mode   string
	header string
	key    string
}

// New creates a Guard. header is matched case-insensitively.
func New(mode, header, key string) Guard {
	return Guard{mode: mode, header: strings.ToLower(header), key: key}
}

// Enabled reports whether requests are actually checked.
func (g Guard) Enabled() bool {
	return g.mode == ModeAPIKey && g.key != ""
}

func (g Guard) valid(got string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(g.key)) == 1
}

// UnaryInterceptor returns a gRPC UnaryServerInterceptor that rejects calls
// without the key with codes.Unauthenticated.
func (g Guard) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if !g.Enabled() {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		vals := md.Get(g.header)
		if len(vals) == 0 || !g.valid(vals[0]) {
			return nil, status.Error(codes.Unauthenticated, "invalid api key")
		}
		return handler(ctx, req)
	}
}

// Middleware returns HTTP middleware that answers 401 to requests without
// the key.
func (g Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Enabled() && !g.valid(r.Header.Get(g.header)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
