package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/followbell/followbell/pkg/types"
	"github.com/followbell/followbell/server/internal/auth"
	"github.com/followbell/followbell/server/internal/feed"
)

// Reported service names.
const (
	FeedService     = "followbell.feed"
	UpstreamService = "followbell.upstream"
)

// Service owns the gRPC server and its health status table.
type Service struct {
	status *health.Server
	srv    *grpc.Server

	mu       sync.Mutex
	upstream healthpb.HealthCheckResponse_ServingStatus
}

// New creates a Service whose calls are checked by guard.
func New(guard auth.Guard) *Service {
	s := &Service{
		status:   health.NewServer(),
		srv:      grpc.NewServer(grpc.UnaryInterceptor(guard.UnaryInterceptor())),
		upstream: healthpb.HealthCheckResponse_UNKNOWN,
	}
	s.status.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.status.SetServingStatus(FeedService, healthpb.HealthCheckResponse_SERVING)
	s.status.SetServingStatus(UpstreamService, healthpb.HealthCheckResponse_UNKNOWN)
	healthpb.RegisterHealthServer(s.srv, s.status)
	return s
}

// Serve accepts connections on lis until ctx is cancelled, then marks every
// service NOT_SERVING and stops gracefully.
func (s *Service) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(lis) }()

	slog.Info("health: grpc listening", "addr", lis.Addr().String())

	select {
	case <-ctx.Done():
		s.status.Shutdown()
		s.srv.GracefulStop()
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("health: serve: %w", err)
		}
		return nil
	}
}

// Upstream returns the last reported platform status.
func (s *Service) Upstream() healthpb.HealthCheckResponse_ServingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upstream
}

// OnFetch implements feed.Observer.
func (s *Service) OnFetch(err error) {
	next := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		next = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upstream == next {
		return
	}
	s.upstream = next
	// Published under mu so the table never lags behind upstream.
	s.status.SetServingStatus(UpstreamService, next)
	if errors.Is(err, feed.ErrNoSession) {
		slog.Info("health: upstream not serving, no session")
	} else {
		slog.Info("health: upstream status changed", "status", next.String())
	}
}

func (s *Service) OnNewFollower(types.Follower)  {}
func (s *Service) OnTestInjected(types.Follower) {}
func (s *Service) OnEvict(string, int)           {}
