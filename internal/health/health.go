// Package health exposes readiness over the standard gRPC health protocol.
package health

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"xitem.org/internal/obs"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "xitem.v1.API"

// Checker reports whether dependencies are reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// Pinger is satisfied by both stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreCheck: проверка готовности через ping хранилища.
type StoreCheck struct {
	Store Pinger
}

func (rp StoreCheck) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	return rp.Store.Ping(ctx)
}

// Server feeds check results into a grpc health server.
type Server struct {
	inner   *health.Server
	check   Checker
	timeout time.Duration
}

func NewServer(check Checker) *Server {
	s := &Server{
		inner:   health.NewServer(),
		check:   check,
		timeout: 2 * time.Second,
	}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Register attaches the health service to g.
func (s *Server) Register(g *grpc.Server) {
	healthpb.RegisterHealthServer(g, s.inner)
}

// Refresh runs the check once and publishes the result.
func (s *Server) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.check.Check(ctx)
	if err != nil {
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
		obs.SetReady(false)
		return err
	}
	s.set(healthpb.HealthCheckResponse_SERVING)
	obs.SetReady(true)
	return nil
}

// Run refreshes every interval until ctx is done, then marks the service
// as shutting down.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			obs.Warn("readiness check failed", map[string]any{"error": err.Error()})
		}
		select {
		case <-ctx.Done():
			s.inner.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.inner.SetServingStatus("", status)
	s.inner.SetServingStatus(ServiceName, status)
}
