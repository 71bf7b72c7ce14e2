// Package api exposes the addon resolvers and admin operations over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/glefebvre/livetv/internal/cleanup"
	"github.com/glefebvre/livetv/internal/genre"
	"github.com/glefebvre/livetv/internal/logger"
	"github.com/glefebvre/livetv/internal/models"
	"github.com/glefebvre/livetv/internal/resolver"
)

// Addon answers the addon protocol requests
type Addon interface {
	Manifest(ctx context.Context) resolver.Manifest
	Catalog(ctx context.Context, typ, id string, extra resolver.Extra) resolver.CatalogResponse
	Meta(ctx context.Context, typ, id string) resolver.MetaResponse
	Stream(ctx context.Context, typ, id string) resolver.StreamResponse
	Enrich(ctx context.Context, name string, force bool) []models.Candidate
	RefreshGenres(ctx context.Context, force bool) genre.Result
}

// Sweeper runs a cleanup sweep
type Sweeper interface {
	Sweep(ctx context.Context, opts cleanup.Options) (*cleanup.Result, error)
}

// Pinger checks the key/value backend
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server settings
type Config struct {
	Port        int
	CORSOrigins []string

	// AdminToken guards /admin; admin routes answer 403 while it is empty
	AdminToken string
}

// Deps are the services the server routes to
type Deps struct {
	Addon   Addon
	Sweeper Sweeper
	Store   Pinger
	Metrics http.Handler
	Logger  *logger.Logger
}

// Server represents the API server
type Server struct {
	cfg    Config
	deps   Deps
	router *gin.Engine
	http   *http.Server
	logger *logger.Logger
}

// NewServer creates a new API server instance
func NewServer(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.AppLogger()
	}

	router := gin.New()
	router.Use(
		requestIDMiddleware(),
		loggingMiddleware(deps.Logger),
		errorHandlerMiddleware(deps.Logger),
		corsMiddleware(cfg.CORSOrigins),
	)

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: router,
		logger: deps.Logger,
	}

	s.setupRoutes()

	return s
}

// Handler returns the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until Shutdown is called
func (s *Server) Run() error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.WithFields(map[string]interface{}{"port": s.cfg.Port}).Info("http server listening")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	// Addon protocol
	s.router.GET("/manifest.json", s.manifest)
	s.router.GET("/catalog/:type/:id", s.catalog)
	s.router.GET("/catalog/:type/:id/:extra", s.catalog)
	s.router.GET("/meta/:type/:id", s.meta)
	s.router.GET("/stream/:type/:id", s.stream)

	admin := s.router.Group("/admin", adminAuthMiddleware(s.cfg.AdminToken))
	{
		admin.POST("/cleanup", s.runCleanup)
		admin.POST("/enrich/:name", s.enrichChannel)
		admin.POST("/genres", s.refreshGenres)
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	cfg.ExposeHeaders = []string{"X-Request-ID"}

	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
