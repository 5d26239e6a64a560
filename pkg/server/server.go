// Package server exposes the frame pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/menta2k/mood-detector/internal/config"
	"github.com/menta2k/mood-detector/internal/event"
	"github.com/menta2k/mood-detector/pkg/types"
)

var log = event.Log

// shutdownTimeout bounds how long in-flight requests may finish after Run's context ends.
const shutdownTimeout = 10 * time.Second

// FrameProcessor annotates one encoded frame.
type FrameProcessor interface {
	ProcessFrame(ctx context.Context, payload string) (types.FrameResult, error)
}

// Server serves the frame endpoint.
type Server struct {
	config    config.ServerConfig
	processor FrameProcessor
	router    *gin.Engine
}

type frameRequest struct {
	Image *string `json:"image"`
}

var errMissingImage = errors.New("request has no image field")

// New creates a Server and registers its routes.
func New(cfg config.ServerConfig, p FrameProcessor) *Server {
	s := &Server{config: cfg, processor: p}

	router := gin.New()
	_ = router.SetTrustedProxies(nil)
	router.Use(RequestID(), Logger(), Recovery())

	if cfg.Debug && !cfg.Gzip {
		router.Use(ErrorLogMiddleware)
	}
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORSOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:  []string{"Origin", "Content-Type", RequestIDHeader},
			ExposeHeaders: []string{"Content-Length", RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}
	if cfg.Gzip {
		router.Use(gzip.Gzip(gzip.DefaultCompression))
	}

	router.GET("/healthz", s.health)
	router.GET("/labels", s.labels)
	router.POST("/process_frame", BodyLimit(cfg.MaxBodyBytes), s.processFrame)

	s.router = router
	return s
}

// Router returns the underlying gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run listens on the configured address until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.BindAddress,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout(),
		WriteTimeout: s.config.WriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("server: listening on %s", s.config.BindAddress)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) processFrame(c *gin.Context) {
	var req frameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(c, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.fail(c, fmt.Errorf("invalid request: %w", err))
		return
	}
	if req.Image == nil {
		s.fail(c, errMissingImage)
		return
	}

	result, err := s.processor.ProcessFrame(c.Request.Context(), *req.Image)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// fail answers with the error envelope. Every pipeline failure maps to 500.
func (s *Server) fail(c *gin.Context, err error) {
	log.Warnf("server: process frame [%s]: %v", requestID(c), err)
	c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: err.Error()})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) labels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"labels": types.Emotions})
}
