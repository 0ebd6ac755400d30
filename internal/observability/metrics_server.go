package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes the Prometheus registry on /metrics plus a
// /healthz liveness probe. It serves in the background; Shutdown drains
// in-flight scrapes.
type MetricsServer struct {
	addr     string
	logger   *slog.Logger
	server   *http.Server
	listener net.Listener
}

// NewMetricsServer prepares a server for addr. Nothing listens until
// Start.
func NewMetricsServer(addr string, logger *slog.Logger) *MetricsServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsServer{addr: addr, logger: logger}
}

// Start binds the listener and begins serving. Bind failures return
// immediately; later serve errors only log.
func (s *MetricsServer) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", handleHealthz)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}

	s.server = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", "error", err)
		}
	}()

	s.logger.Info("metrics server listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address, useful when addr requested port 0.
func (s *MetricsServer) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting up to five seconds for in-flight
// requests when ctx carries no deadline of its own.
func (s *MetricsServer) Shutdown(ctx context.Context) {
	if s.server == nil {
		return
	}
	shutdownCtx := ctx
	var cancel context.CancelFunc
	if shutdownCtx == nil {
		shutdownCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("metrics server shutdown error", "error", err)
	}
	s.server = nil
	s.listener = nil
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
