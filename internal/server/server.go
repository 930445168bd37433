// Package server exposes the session cache and change stream over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/grovetools/agentconsole/internal/broadcast"
	"github.com/grovetools/agentconsole/internal/session"
	"github.com/grovetools/agentconsole/internal/watcher"
	"github.com/grovetools/core/logging"
	"github.com/klauspost/compress/gzhttp"
	"github.com/sirupsen/logrus"
)

const (
	DefaultHeartbeat = 30 * time.Second
	shutdownTimeout  = 5 * time.Second
)

// Options wires a Server to its collaborators. Watcher may be nil, in which
// case the change stream only carries the connected event and heartbeats.
type Options struct {
	Addr      string
	Cache     *session.Cache
	Hub       *broadcast.Broadcaster
	Watcher   *watcher.Watcher
	Heartbeat time.Duration
}

// Server is the HTTP API.
type Server struct {
	addr      string
	cache     *session.Cache
	hub       *broadcast.Broadcaster
	watcher   *watcher.Watcher
	heartbeat time.Duration
	log       *logrus.Entry
}

// New creates a server. A nil Hub gets a fresh broadcaster.
func New(opts Options) *Server {
	if opts.Hub == nil {
		opts.Hub = broadcast.New()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	return &Server{
		addr:      opts.Addr,
		cache:     opts.Cache,
		hub:       opts.Hub,
		watcher:   opts.Watcher,
		heartbeat: opts.Heartbeat,
		log:       logging.NewLogger("agconsole.server"),
	}
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/sessions", s.handleListSessions)
	api.HandleFunc("GET /api/sessions/{project}/{session}", s.handleGetSession)
	api.HandleFunc("GET /api/sessions/{project}/{session}/export", s.handleExportSession)
	api.HandleFunc("DELETE /api/sessions/{project}/{session}", s.handleDeleteSession)
	api.HandleFunc("GET /api/health", s.handleHealth)

	mux := http.NewServeMux()
	// The event stream must not sit behind a compressing writer.
	mux.HandleFunc("GET /api/sse", s.handleSSE)
	mux.Handle("/", gzhttp.GzipHandler(api))

	return s.logRequests(withCORS(mux))
}

// Run serves until ctx is cancelled, then shuts down gracefully. Open event
// streams are ended first so shutdown does not wait on them.
func (s *Server) Run(ctx context.Context) error {
	if err := s.connectWatcher(ctx); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.WithField("addr", ln.Addr().String()).Info("Server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server")
	cancelBase()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// connectWatcher starts the watcher and forwards its events to the hub. The
// cache is not subscribed; it relies on its own freshness checks.
func (s *Server) connectWatcher(ctx context.Context) error {
	if s.watcher == nil {
		return nil
	}
	if err := s.watcher.Start(ctx); err != nil {
		return err
	}
	s.watcher.Subscribe(func(ev watcher.Event) {
		n := s.hub.Publish(broadcast.Event{Name: string(ev.Category), Data: ev.Payload()})
		s.log.WithFields(logrus.Fields{
			"event":   ev.Category,
			"kind":    ev.Kind,
			"clients": n,
		}).Debug("Broadcast change")
	})
	return nil
}
