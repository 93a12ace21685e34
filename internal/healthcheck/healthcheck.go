package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

type Server struct {
	port     int
	handlers map[string]http.Handler
}

type Option func(*Server)

// WithHandler mounts an extra handler next to /health-check, e.g. /metrics.
func WithHandler(pattern string, handler http.Handler) Option {
	return func(s *Server) {
		s.handlers[pattern] = handler
	}
}

func NewServer(port int, opts ...Option) *Server {
	s := &Server{port: port, handlers: map[string]http.Handler{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (hs *Server) handle(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (hs *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health-check", hs.handle)
	for pattern, handler := range hs.handlers {
		mux.Handle(pattern, handler)
	}
	return mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (hs *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", hs.port),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		Handler:           hs.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info(fmt.Sprintf("health check server listening on :%d", hs.port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("health check server failed: %w", err)
	case <-ctx.Done():
	}

	ctxShutDown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutDown); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
