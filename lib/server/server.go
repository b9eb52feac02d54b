package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/ValentinKolb/sqkv/lib/store"
	"github.com/VictoriaMetrics/metrics"
)

var logger = common.CreateLogger("server")

// Server exposes a store over HTTP with JSON bodies.
//
// Thread-safety:
//
//	The handlers only share the store, which is safe for concurrent use.
type Server struct {
	config  common.ServerConfig
	store   store.IStore
	metrics *metrics.Set
	handler http.Handler
}

// NewServer creates a server for s. The caller keeps ownership of the store
// and closes it after Serve returned.
//
// Usage:
//
//	s, _ := sqlstore.Open(ctx, conf.Store)
//	defer s.Close()
//	srv := server.NewServer(conf, s)
//	if err := srv.Serve(ctx); err != nil {
//		// ...
//	}
func NewServer(config common.ServerConfig, s store.IStore) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = common.DefaultMaxBodyBytes
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = common.DefaultShutdownTimeout
	}

	srv := &Server{
		config:  config,
		store:   s,
		metrics: metrics.NewSet(),
	}
	srv.handler = srv.middleware(srv.routes())
	return srv
}

// Handler returns the http.Handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve listens on the configured endpoint until ctx is done and then shuts
// down gracefully, giving in-flight requests ShutdownTimeout to finish.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Endpoint)
	if err != nil {
		return common.WrapError(common.RetCConfig, err, "listen on "+s.config.Endpoint)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting HTTP server on %s", ln.Addr())
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
