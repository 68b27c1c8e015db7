package telemetry

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes /metrics on a loopback-only HTTP listener. Binding to
// loopback keeps the debug surface off the network the wrapper's stdio/HTTP
// downstream connection may traverse.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds a metrics server backed by reg. addr should be a
// loopback address such as "127.0.0.1:0" (port 0 picks an ephemeral port).
func NewServer(addr string, reg *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		logger:     logger,
	}
}

// Serve listens on s's configured address and serves until ctx is
// cancelled. It returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	host, _, err := net.SplitHostPort(s.httpServer.Addr)
	if err != nil {
		return err
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return &net.AddrError{Err: "metrics listener address is not a loopback address", Addr: s.httpServer.Addr}
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = s.httpServer.Close()
	}()
	s.logger.Info("telemetry listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
