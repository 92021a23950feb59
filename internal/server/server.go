// Package server exposes the session and analysis pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"askdocs/internal/domain"
	"askdocs/internal/logging"
	"askdocs/internal/pipeline"
)

// Config controls the HTTP listener.
type Config struct {
	Addr        string
	CORSOrigins []string
	MaxUploadMB int
}

// Server serves one shared Session.
type Server struct {
	cfg       Config
	orch      *pipeline.Orchestrator
	session   *pipeline.Session
	extractor domain.Extractor
	validate  *validator.Validate
	engine    *gin.Engine
}

func New(cfg Config, orch *pipeline.Orchestrator, session *pipeline.Session, extractor domain.Extractor) *Server {
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 32
	}
	s := &Server{
		cfg:       cfg,
		orch:      orch,
		session:   session,
		extractor: extractor,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
	s.engine = s.routes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.MaxMultipartMemory = int64(s.cfg.MaxUploadMB) << 20
	r.Use(gin.Recovery(), requestID(), trace(), accessLog(), corsMiddleware(s.cfg.CORSOrigins))

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.POST("/documents", s.uploadDocuments)
		v1.GET("/documents", s.listDocuments)
		v1.POST("/ask", s.ask)
		v1.POST("/query", s.query)
		v1.POST("/search", s.search)
		v1.GET("/history", s.history)
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Default().Info("http server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logging.Default().Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
