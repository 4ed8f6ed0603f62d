// Package healthrpc serves the standard gRPC health-checking protocol so an
// orchestrator (Kubernetes readiness/liveness probes, a load balancer) can
// poll the daemon's status without a bespoke HTTP contract. Grounded on the
// teacher's visualiser gRPC server lifecycle (listen, serve in a goroutine,
// graceful stop on shutdown).
package healthrpc

import (
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var opsLogger *log.Logger

// SetLogWriters configures the package's ops logging stream.
func SetLogWriters(ops io.Writer) {
	opsLogger = newLogger("[healthrpc] ", ops)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

// Server wraps a grpc.Server exposing the standard health service, with a
// settable overall serving status.
type Server struct {
	mu       sync.Mutex
	listener net.Listener
	grpcSrv  *grpc.Server
	health   *health.Server
}

// New builds (but does not start) a health server; Start binds it to an
// address.
func New() *Server {
	return &Server{health: health.NewServer()}
}

// Start listens on addr and serves in a background goroutine. Call Stop to
// shut down gracefully.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("healthrpc: listen: %w", err)
	}

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, s.health)

	s.listener = lis
	s.grpcSrv = srv
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		opsf("gRPC health service listening on %s", addr)
		if err := srv.Serve(lis); err != nil {
			opsf("gRPC health service stopped serving: %v", err)
		}
	}()
	return nil
}

// SetServing flips the overall serving status. cmd/mcmotd sets it to
// not-serving right after Start and to serving when its first cycle
// begins.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// Stop gracefully shuts down the gRPC server, if started.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grpcSrv == nil {
		return
	}
	s.grpcSrv.GracefulStop()
	opsf("gRPC health service stopped")
}
