package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c2buck/audio-transcriber/pkg/buildinfo"
	"github.com/c2buck/audio-transcriber/pkg/logging"
)

// Server exposes /metrics, /version and /healthz while a review runs.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   logging.Logger
	done     chan struct{}
}

// NewRouter builds the handler served by Server.
func NewRouter(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/version", buildinfo.Handler("transcriber"))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	return mux
}

// StartServer listens on addr and serves in the background.
func StartServer(addr string, gatherer prometheus.Gatherer, logger logging.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		srv: &http.Server{
			Handler:      NewRouter(gatherer),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		listener: ln,
		logger:   logger,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", logging.Err(err))
		}
	}()

	logger.Info("Metrics server listening", logging.F("addr", ln.Addr().String()))
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
