// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/jeranaias/forkchat/internal/keys"
	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/storage"
	"github.com/jeranaias/forkchat/internal/upstream"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8000"

	// MaxRequestBodySize bounds JSON request bodies.
	MaxRequestBodySize = "8M"

	// DefaultMaxUploadSize bounds a single uploaded file.
	DefaultMaxUploadSize = 64 << 20

	// upstreamProvider is the key consulted for generation requests.
	upstreamProvider = "openrouter"

	// Version is the server version.
	Version = "0.3.0"
)

// ============================================================================
// SERVER
// ============================================================================

// Upstream opens a streaming completion.
type Upstream interface {
	Open(ctx context.Context, apiKey string, body map[string]any) (io.ReadCloser, error)
}

// Config holds the listener and limit settings.
type Config struct {
	Addr string

	// RateLimit is requests per second per client IP on /api; zero disables.
	RateLimit float64
	RateBurst int

	// MaxUploadSize bounds uploads in bytes; zero uses DefaultMaxUploadSize.
	MaxUploadSize int64
}

// Deps are the collaborators a server is built from.
type Deps struct {
	Store    storage.Store
	Keys     *keys.Store
	Upstream Upstream
	Catalog  model.Catalog
	Logger   zerolog.Logger
}

// Server is the HTTP conversation service.
type Server struct {
	cfg      Config
	echo     *echo.Echo
	store    storage.Store
	keys     *keys.Store
	upstream Upstream
	builder  upstream.Builder
	catalog  model.Catalog
	metrics  *Metrics
	log      zerolog.Logger
	started  time.Time

	// writeMu serializes read-modify-write cycles on stored conversations.
	writeMu sync.Mutex
}

// New builds a server and its routes.
func New(cfg Config, deps Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		cfg:      cfg,
		echo:     e,
		store:    deps.Store,
		keys:     deps.Keys,
		upstream: deps.Upstream,
		catalog:  deps.Catalog,
		builder:  upstream.Builder{Catalog: deps.Catalog, FilesDir: deps.Store.FilesDir},
		metrics:  NewMetrics(),
		log:      deps.Logger.With().Str("component", "server").Logger(),
		started:  time.Now(),
	}
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.Recover())
	e.Use(RequestLogger(s.log))
	e.Use(s.metrics.Middleware())
	e.Use(SecurityHeaders())

	s.setupRoutes()
	return s
}

// setupRoutes configures all endpoints.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", s.metrics.Handler())

	api := s.echo.Group("/api", RateLimit(s.cfg.RateLimit, s.cfg.RateBurst))

	chats := api.Group("/chats")
	chats.GET("", s.handleListChats)
	chats.POST("", s.handleCreateChat, middleware.BodyLimit(MaxRequestBodySize))
	chats.GET("/search", s.handleSearchChats)
	chats.GET("/:id", s.handleGetChat)
	chats.PUT("/:id", s.handleUpdateChat, middleware.BodyLimit(MaxRequestBodySize))
	chats.DELETE("/:id", s.handleDeleteChat)
	chats.POST("/:id/generate", s.handleGenerate)
	chats.POST("/:id/upload", s.handleUpload)
	chats.GET("/:id/files/:filename", s.handleServeFile)

	api.GET("/keys", s.handleGetKeys)
	api.POST("/keys", s.handleUpdateKeys, middleware.BodyLimit("64K"))
	api.GET("/models", s.handleModels)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Str("version", Version).Msg("server starting")
		errc <- s.echo.Start(s.cfg.Addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info().Msg("server shutting down")
	return s.echo.Shutdown(shutdownCtx)
}

// ============================================================================
// HEALTH
// ============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleModels(c echo.Context) error {
	catalog := s.catalog
	if catalog == nil {
		catalog = model.Catalog{}
	}
	return c.JSON(http.StatusOK, catalog)
}

// ============================================================================
// HELPERS
// ============================================================================

// errorHandler renders errors as {"detail": message}.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	} else {
		s.log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("unhandled error")
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{"detail": msg})
}

// storeError maps storage errors onto HTTP errors.
func storeError(err error) error {
	switch {
	case errors.Is(err, storage.ErrConversationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Chat not found")
	case errors.Is(err, storage.ErrInvalidID):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid chat id")
	}
	return err
}
