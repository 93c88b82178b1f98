package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig configures a metrics Server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":9090" or "localhost:9090".
	Addr string

	// Path serves the metrics (default: "/metrics").
	Path string

	// Gatherer supplies the metrics (default: prometheus.DefaultGatherer).
	Gatherer prometheus.Gatherer
}

// Server provides an optional HTTP server exposing metrics while a
// bootstrap command runs.
type Server struct {
	server  *http.Server
	errChan chan error
}

// NewServer creates a metrics server for the default registry on addr.
func NewServer(addr string) *Server {
	return NewServerWithConfig(ServerConfig{Addr: addr})
}

// NewServerWithConfig creates a metrics server, applying defaults for zero-valued fields.
// Besides the metrics path it answers /healthz with 200.
func NewServerWithConfig(cfg ServerConfig) *Server {
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &Server{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		errChan: make(chan error, 1),
	}
}

// Start starts the metrics server in a goroutine.
// Returns immediately. Check Err() to detect startup failures.
// Use Shutdown to stop the server.
func (s *Server) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errChan <- err:
			default:
			}
		}
	}()
}

// Err returns any error that occurred during server startup or operation.
// This is non-blocking and returns nil if no error has occurred.
func (s *Server) Err() error {
	select {
	case err := <-s.errChan:
		return err
	default:
		return nil
	}
}

// Shutdown gracefully shuts down the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
