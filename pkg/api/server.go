// Package api exposes the research service over HTTP: an OpenAI-compatible
// chat completions endpoint that drives research runs (streaming or blocking),
// plus session management and health endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scourlabs/scour/pkg/config"
	"github.com/scourlabs/scour/pkg/database"
	"github.com/scourlabs/scour/pkg/models"
	"github.com/scourlabs/scour/pkg/research"
)

// SessionStore is the persistence surface the handlers need. It is satisfied
// by *services.SessionStore.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*models.Session, error)
	List(ctx context.Context, userID string) ([]models.SessionSummary, error)
	Delete(ctx context.Context, sessionID string) (bool, error)
	Resume(ctx context.Context, sessionID string) (*models.Session, error)
	History(ctx context.Context, sessionID string) ([]models.IterationRecord, error)
	Rollback(ctx context.Context, sessionID string, iteration int) (*models.Session, error)
}

// Runner executes a research run and streams its progress. It is satisfied
// by *research.Orchestrator.
type Runner interface {
	Run(ctx context.Context, session *models.Session) <-chan research.Chunk
}

// Server is the HTTP API server.
type Server struct {
	cfg      *config.Config
	store    SessionStore
	runner   Runner
	registry *research.RunRegistry
	db       *database.Client

	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates the API server. db may be nil in tests; the health
// endpoint then skips the database check.
func NewServer(cfg *config.Config, store SessionStore, runner Runner, registry *research.RunRegistry, db *database.Client) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		runner:   runner,
		registry: registry,
		db:       db,
		logger:   slog.With("component", "api"),
	}
}

// Handler builds the route tree. Exposed separately from Start so tests can
// drive the server through httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), securityHeaders())

	router.GET("/health", s.healthHandler)
	router.GET("/models", s.listModelsHandler)

	v1 := router.Group("/v1")
	{
		v1.POST("/chat/completions", s.chatCompletionsHandler)
		v1.GET("/models", s.listModelsHandler)
	}

	sessions := router.Group("/sessions")
	{
		sessions.GET("", s.listSessionsHandler)
		sessions.GET("/:id", s.getSessionHandler)
		sessions.DELETE("/:id", s.deleteSessionHandler)
		sessions.POST("/:id/resume", s.resumeSessionHandler)
		sessions.GET("/:id/history", s.sessionHistoryHandler)
		sessions.POST("/:id/rollback/:n", s.rollbackSessionHandler)
	}

	return router
}

// Start runs the HTTP server on addr until Shutdown is called. The write
// timeout is deliberately unset: research runs stream over SSE for however
// long an investigation takes.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
