// Package httpapi exposes pages and blocks over JSON HTTP.
//
// Every response carries a "success" flag. Failures add an "error" object
// whose code is one of the errs codes:
//
//	{"success": false, "error": {"code": "NOT_FOUND", "message": "block 42 not found"}}
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"maglink/internal/config"
	"maglink/internal/service"
)

// Server routes HTTP requests to the page and block services.
type Server struct {
	pages  *service.PageService
	blocks *service.BlockService
	logger *zap.Logger

	requestTimeout time.Duration
}

// New creates a Server. A zero requestTimeout disables the per-request
// deadline.
func New(pages *service.PageService, blocks *service.BlockService, logger *zap.Logger, requestTimeout time.Duration) *Server {
	return &Server{
		pages:          pages,
		blocks:         blocks,
		logger:         logger,
		requestTimeout: requestTimeout,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))
	if s.requestTimeout > 0 {
		r.Use(middleware.Timeout(s.requestTimeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, envelope{"status": "ok"})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/pages", func(r chi.Router) {
			r.Get("/", s.listPages)
			r.Post("/", s.createPage)
			r.Route("/{page}", func(r chi.Router) {
				r.Get("/", s.getPage)
				r.Put("/", s.updatePage)
				r.Delete("/", s.deletePage)
				r.Get("/state", s.getPageState)
				r.Post("/views", s.recordView)
				r.Post("/repack", s.repackPage)
				r.Get("/overlaps", s.checkPage)
				r.Get("/snapshots", s.listSnapshots)
				r.Post("/snapshots/{snapshot}/restore", s.restoreSnapshot)
			})
		})

		r.Route("/page-blocks", func(r chi.Router) {
			r.Post("/", s.createBlock)
			r.Post("/positions", s.updatePositions)
			r.Delete("/delete-all/{page}", s.deleteAllBlocks)
			r.Route("/{block}", func(r chi.Router) {
				r.Get("/", s.getBlock)
				r.Put("/", s.updateBlock)
				r.Delete("/", s.deleteBlock)
				r.Post("/position", s.updatePosition)
				r.Post("/size", s.updateSize)
			})
		})
	})
	return r
}

// ListenAndServe serves the API on cfg.Addr until ctx is done, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, cfg config.ServerConfig) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       config.Duration(cfg.ReadTimeout, 15*time.Second),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      config.Duration(cfg.WriteTimeout, 30*time.Second),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http api: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http api shutdown: %w", err)
	}
	s.logger.Info("http api stopped")
	return nil
}
