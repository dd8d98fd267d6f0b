// Package httpapi is the device-facing HTTP front door. It authenticates
// requests with a shared token, decodes the JSON bodies devices send and
// maps workflow outcomes onto the {code, message, data} envelope.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-broker/internal/broker"
)

const (
	mediaPrefix   = "/media/api/v1/workspaces/:workspace_id"
	storagePrefix = "/storage/api/v1/workspaces/:workspace_id"
)

// Workflow is the subset of broker.Service the handlers call.
type Workflow interface {
	FastUpload(ctx context.Context, workspaceID string, req broker.FastUploadRequest) (*broker.FastUploadResult, error)
	CheckTinyFingerprints(ctx context.Context, workspaceID string, tinyFingerprints []string) ([]string, error)
	IssueCredentials(ctx context.Context, workspaceID string) (*broker.Grant, error)
	FinalizeUpload(ctx context.Context, workspaceID string, cb broker.UploadCallback) (string, error)
}

// Options configures the HTTP server.
type Options struct {
	Listen          string
	AuthToken       string
	ShutdownTimeout time.Duration
	Metrics         bool // serve /metrics
}

// Server wraps the gin engine with graceful shutdown.
type Server struct {
	opts   Options
	engine *gin.Engine
	logger broker.Logger
}

// New builds the engine and registers every route.
func New(opts Options, workflow Workflow, logger broker.Logger) *Server {
	if logger == nil {
		logger = broker.NewNopLogger()
	}
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	// Device paths are matched exactly; a trailing slash is an unknown route.
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	engine.Use(gin.Recovery(), accessLog(logger), cors())

	h := &handlers{workflow: workflow, logger: logger}
	engine.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "not found")
	})
	engine.GET("/health", func(c *gin.Context) {
		writeOK(c, gin.H{}, "ok", codeSuccess)
	})
	if opts.Metrics {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	media := engine.Group(mediaPrefix, requireToken(opts.AuthToken))
	media.POST("/fast-upload", h.fastUpload)
	media.POST("/files/tiny-fingerprints", h.tinyFingerprints)
	media.POST("/upload-callback", h.uploadCallback)

	storage := engine.Group(storagePrefix, requireToken(opts.AuthToken))
	storage.POST("/sts", h.sts)

	return &Server{opts: opts, engine: engine, logger: logger}
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on opts.Listen until ctx is cancelled, then drains in-flight
// requests for at most opts.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.opts.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
	case err := <-errCh:
		return err
	}

	timeout := s.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
