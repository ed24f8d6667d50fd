package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"offline_gateway/internal/limits"
)

const defaultGracefulTimeout = 10 * time.Second

type Server struct {
	Addr string

	httpServer   *http.Server
	ln           net.Listener
	graceful     time.Duration
	shutdownOnce sync.Once
	shutdownErr  error
}

type Options struct {
	Limits          limits.Limits
	GracefulTimeout time.Duration
}

func Start(handler http.Handler, addr string, options Options) (*Server, error) {
	if handler == nil {
		return nil, errors.New("handler is nil")
	}
	if addr == "" {
		return nil, errors.New("listen addr is empty")
	}

	limitConfig := options.Limits
	if limitConfig.MaxHeaderBytes == 0 {
		limitConfig = limits.Default()
	}
	graceful := options.GracefulTimeout
	if graceful <= 0 {
		graceful = defaultGracefulTimeout
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Handler:           handler,
		MaxHeaderBytes:    limitConfig.MaxHeaderBytes,
		ReadHeaderTimeout: limitConfig.ReadHeaderTimeout,
		ReadTimeout:       limitConfig.ReadTimeout,
		WriteTimeout:      limitConfig.WriteTimeout,
		IdleTimeout:       limitConfig.IdleTimeout,
	}
	go serve(srv, ln)

	return &Server{
		Addr:       ln.Addr().String(),
		httpServer: srv,
		ln:         ln,
		graceful:   graceful,
	}, nil
}

func serve(server *http.Server, ln net.Listener) {
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
	}
}

func (s *Server) Shutdown() error {
	if s == nil {
		return nil
	}
	s.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.graceful)
		defer cancel()
		err := s.httpServer.Shutdown(ctx)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.shutdownErr = err
		}
		if ctx.Err() != nil {
			_ = s.httpServer.Close()
			if s.shutdownErr == nil {
				s.shutdownErr = ctx.Err()
			}
		}
	})
	return s.shutdownErr
}
