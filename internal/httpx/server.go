// Package httpx hosts the daemon's HTTP surface: the webhook endpoint the
// scheduling service calls back into, plus a health route.
package httpx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"clocktick/internal/config"
	logx "clocktick/pkg/logx"
)

// Server manages the lifecycle of the webhook listener.
type Server struct {
	log logx.Logger
	srv *http.Server
	ln  net.Listener

	addr string
}

// New builds the mux and binds the listener. webhook is mounted at
// cfg.Webhook() behind the rate-limit and dedup middleware; limiter and
// dedup may be nil.
func New(cfg *config.Config, webhook http.Handler, limiter func(http.Handler) http.Handler, dedup func(http.Handler) http.Handler, log logx.Logger) (*Server, error) {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	h := webhook
	if dedup != nil {
		h = dedup(h)
	}
	if limiter != nil {
		h = limiter(h)
	}
	r.Method(http.MethodPost, cfg.Webhook(), h)

	srv := &http.Server{
		Handler:      r,
		ReadTimeout:  cfg.HTTP.Timeout(cfg.HTTP.ReadTimeout),
		WriteTimeout: cfg.HTTP.Timeout(cfg.HTTP.WriteTimeout),
		IdleTimeout:  cfg.HTTP.Timeout(cfg.HTTP.IdleTimeout),
	}
	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return nil, err
	}

	return &Server{
		log:  log.With(logx.String("comp", "http")),
		srv:  srv,
		ln:   ln,
		addr: ln.Addr().String(),
	}, nil
}

// Addr is the bound listen address (useful when the config asked for :0).
func (s *Server) Addr() string { return s.addr }

// Start serves until Stop. It returns immediately; serve errors are logged.
func (s *Server) Start() {
	s.log.Info("webhook listener started", logx.String("addr", s.addr))
	go func() {
		if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", logx.Err(err))
		}
	}()
}

// Stop gracefully drains in-flight requests.
func (s *Server) Stop(ctx context.Context) {
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Warn("http shutdown", logx.Err(err))
	}
}
