// Package server runs the long-lived toolwarden process: hot-reloaded rules,
// a gRPC health service, and an HTTP listener for metrics and MCP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ppiankov/toolwarden/internal/policy"
)

// RulesService is the health service name that reports NOT_SERVING while
// the rule set is degraded.
const RulesService = "toolwarden.rules"

// Config holds listener configuration. A zero GRPCPort or empty HTTPAddr
// disables that listener.
type Config struct {
	GRPCPort int
	HTTPAddr string
	Metrics  bool
}

// Server owns the gRPC and HTTP listeners.
type Server struct {
	cfg    Config
	holder *Holder

	grpcServer *grpc.Server
	health     *health.Server
	mux        *http.ServeMux
	httpServer *http.Server
	logger     *slog.Logger
}

// New wires a server around holder. reg receives the server's own
// collectors and is exposed on /metrics when cfg.Metrics is set.
func New(cfg Config, holder *Holder, reg *prometheus.Registry) *Server {
	s := &Server{
		cfg:        cfg,
		holder:     holder,
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		mux:        http.NewServeMux(),
		logger:     slog.Default().With("component", "server"),
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	rulesLoaded := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "toolwarden_rules_loaded",
		Help: "Number of firewall rules in the active rule set.",
	})
	degraded := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "toolwarden_rules_degraded",
		Help: "1 while the active rule set is degraded and every call is allowed.",
	})
	if reg != nil {
		reg.MustRegister(rulesLoaded, degraded)
	}

	holder.OnSwap(func(e *policy.Engine) {
		set := e.Rules()
		rulesLoaded.Set(float64(len(set.Rules)))
		status := healthpb.HealthCheckResponse_SERVING
		if set.Degraded {
			degraded.Set(1)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		} else {
			degraded.Set(0)
		}
		s.health.SetServingStatus(RulesService, status)
	})
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	if cfg.Metrics && reg != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	return s
}

// Handle mounts h on the HTTP listener. Call before Serve.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Serve runs the configured listeners until ctx is cancelled, then stops
// them gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 2)

	if s.cfg.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen on port %d: %w", s.cfg.GRPCPort, err)
		}
		s.logger.Info("gRPC health listening", "addr", lis.Addr().String())
		go func() { errc <- s.ServeGRPC(lis) }()
	}

	if s.cfg.HTTPAddr != "" {
		lis, err := net.Listen("tcp", s.cfg.HTTPAddr)
		if err != nil {
			s.grpcServer.Stop()
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTPAddr, err)
		}
		s.httpServer = &http.Server{Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
		s.logger.Info("HTTP listening", "addr", lis.Addr().String(), "metrics", s.cfg.Metrics)
		go func() {
			if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
				return
			}
			errc <- nil
		}()
	}

	select {
	case <-ctx.Done():
		s.Shutdown()
		return nil
	case err := <-errc:
		s.Shutdown()
		return err
	}
}

// ServeGRPC serves the health service on lis. Blocks until stopped.
func (s *Server) ServeGRPC(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Shutdown marks every service NOT_SERVING and stops both listeners.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("http shutdown", "error", err)
		}
	}
	s.grpcServer.GracefulStop()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	set := s.holder.Engine().Rules()
	w.Header().Set("Content-Type", "application/json")
	if set.Degraded {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"status":"degraded","rules_hash":%q}`+"\n", set.Hash)
		return
	}
	fmt.Fprintf(w, `{"status":"ok","rules":%d,"rules_hash":%q}`+"\n", len(set.Rules), set.Hash)
}
