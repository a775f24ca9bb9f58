// Package health exposes liveness and readiness for the islandgreet daemon.
//
// Docker and Kubernetes probe /healthz and /readyz over HTTP. The same
// readiness state is published through the standard grpc.health.v1 service
// for orchestrators that prefer gRPC probes.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the
// overall ("") status.
const ServiceName = "islandgreet.Greeter"

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Server exposes /healthz, /readyz and grpc.health.v1.
type Server struct {
	port     int
	grpcPort int
	ready    atomic.Bool

	mu     sync.RWMutex
	checks map[string]Check

	grpcHealth *grpchealth.Server
	server     *http.Server
}

// New creates a new health server. A grpcPort of 0 disables the gRPC listener.
func New(port, grpcPort int) *Server {
	s := &Server{
		port:       port,
		grpcPort:   grpcPort,
		checks:     make(map[string]Check),
		grpcHealth: grpchealth.NewServer(),
	}
	s.publish(false)
	return s
}

// AddCheck registers a readiness check.
func (s *Server) AddCheck(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// SetReady marks the daemon as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
	s.publish(ready)
}

func (s *Server) publish(ready bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.grpcHealth.SetServingStatus("", status)
	s.grpcHealth.SetServingStatus(ServiceName, status)
}

// Handler returns the HTTP probe routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
			return
		}
		writeStatus(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
			return
		}
		if failed := s.runChecks(r.Context()); len(failed) > 0 {
			writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failed": failed})
			return
		}
		writeStatus(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	return mux
}

// ListenAndServe starts the health check HTTP server and, when configured,
// the gRPC health listener. It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if s.grpcPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.grpcPort))
		if err != nil {
			return fmt.Errorf("grpc health listen: %w", err)
		}
		go func() {
			if err := s.ServeGRPC(ctx, lis); err != nil {
				slog.Error("grpc health server failed", "error", err)
			}
		}()
	}

	slog.Info("health server listening", "port", s.port, "grpc_port", s.grpcPort)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

// ServeGRPC serves grpc.health.v1 on lis until the context is cancelled.
func (s *Server) ServeGRPC(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, s.grpcHealth)

	go func() {
		<-ctx.Done()
		s.grpcHealth.Shutdown()
		srv.GracefulStop()
	}()

	if err := srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc health serve: %w", err)
	}
	return nil
}

// --- Internal types and helpers ---

func (s *Server) runChecks(ctx context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var failed []string
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed
}

func writeStatus(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
