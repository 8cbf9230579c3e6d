// Package health exposes the relay's liveness over the standard gRPC health
// protocol, for orchestrators that probe gRPC rather than HTTP.
package health

import (
	"context"
	"errors"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name reported for the HTTP relay alongside the overall "" entry.
const Service = "emboss.relay.v1.Relay"

type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

func NewServer() *Server {
	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(Service, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(listener net.Listener) error {
	log.Printf("health gRPC listening on %s", listener.Addr())
	if err := s.grpc.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks every service NOT_SERVING and then drains in-flight RPCs until
// ctx is done.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}
