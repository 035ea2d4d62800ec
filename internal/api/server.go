// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spooncast/echo/internal/config"
	"github.com/spooncast/echo/internal/log"
	"github.com/spooncast/echo/internal/session"
	"github.com/spooncast/echo/internal/srt"
	"github.com/spooncast/echo/internal/stat"
)

// Server is echo's HTTP control plane: a thin adapter between incoming
// publish/teardown/pause/resume/state requests and the session Manager
// (spec.md §6.1), grounded on the teacher's internal/api.Server.
type Server struct {
	cfg     config.Config
	manager *session.Manager
	srtPool *srt.PortPool
	stats   *stat.Store
	client  *http.Client
}

// NewServer builds a Server ready to Run. Run itself registers the default
// EventAuthorizeSession policy (runDefaultAuthPolicy) before serving.
func NewServer(cfg config.Config, manager *session.Manager, srtPool *srt.PortPool, stats *stat.Store) *Server {
	return &Server{
		cfg:     cfg,
		manager: manager,
		srtPool: srtPool,
		stats:   stats,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Run starts the default authorize policy and serves HTTP until ctx is
// canceled.
func (s *Server) Run(ctx context.Context) error {
	if err := runDefaultAuthPolicy(ctx, s.manager); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(log.Middleware())
	r.Use(rateLimit(rateLimitConfig{RequestLimit: 60, WindowSize: time.Minute}))

	r.Get("/echo/option", s.handleOptions)
	r.Post("/echo/3/publish/{name}", s.handlePublish(3))
	r.Post("/echo/4/publish/{name}", s.handlePublish(4))
	r.Post("/echo/3/teardown", s.handleTeardown)
	r.Put("/echo/4/teardown", s.handleTeardown)
	r.Put("/echo/4/pause", s.handlePause)
	r.Put("/echo/4/resume", s.handleResume)
	r.Get("/echo/4/state", s.handleState)

	return r
}

// forward relays the in-flight request to the node at addr, copying its
// status and body back verbatim (spec.md §6.1 end-to-end scenario 6).
func (s *Server) forward(w http.ResponseWriter, r *http.Request, addr string) {
	url := "http://" + addr + r.URL.RequestURI()
	req, err := http.NewRequestWithContext(r.Context(), r.Method, url, r.Body)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, errInternal)
		return
	}
	req.Header = r.Header.Clone()
	if c, err := r.Cookie(cookieName); err == nil {
		req.AddCookie(c)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.L().Error().Err(err).Str("addr", addr).Msg("api: teardown forwarding failed")
		respondError(w, r, http.StatusBadGateway, errInternal)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
