// Package api provides the HTTP surface for the loop controller: the
// GitHub webhook receiver, the coding-agent daemon's terminal-event
// ingestion endpoint, control-plane operations (enroll, lookups, plan
// approval, manual stop), the realtime WebSocket feed, and a health check.
package api

import (
	"context"
	"net"
	"net/http"
	"os"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/sdlcloop/controller/ent"
	"github.com/sdlcloop/controller/pkg/config"
	"github.com/sdlcloop/controller/pkg/database"
	"github.com/sdlcloop/controller/pkg/queue"
	"github.com/sdlcloop/controller/pkg/realtime"
)

// Server is the HTTP API server.
type Server struct {
	echo        *echo.Echo
	httpServer  *http.Server
	cfg         *config.Config
	dbClient    *database.Client
	client      *ent.Client
	workerPool  *queue.WorkerPool
	connManager *realtime.ConnectionManager

	instanceID    string // claimant token used for webhook claims made by this process
	webhookSecret []byte // nil disables signature verification (dev/test only)
}

// NewServer creates a new API server with Echo v5.
func NewServer(
	cfg *config.Config,
	dbClient *database.Client,
	client *ent.Client,
	workerPool *queue.WorkerPool,
	connManager *realtime.ConnectionManager,
	instanceID string,
) *Server {
	e := echo.New()

	s := &Server{
		echo:        e,
		cfg:         cfg,
		dbClient:    dbClient,
		client:      client,
		workerPool:  workerPool,
		connManager: connManager,
		instanceID:  instanceID,
	}

	if cfg.System.GitHub != nil && cfg.System.GitHub.WebhookSecretEnv != "" {
		if secret := os.Getenv(cfg.System.GitHub.WebhookSecretEnv); secret != "" {
			s.webhookSecret = []byte(secret)
		}
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")

	// GitHub webhook receiver — unauthenticated by oauth2-proxy (it sits in
	// front of the public internet-facing path), authenticated instead by
	// the HMAC signature on the body.
	v1.POST("/webhooks/github", s.githubWebhookHandler)

	// Coding-agent daemon terminal-event ingestion.
	v1.POST("/daemon-events/terminal", s.daemonTerminalEventHandler)

	// Control plane.
	v1.POST("/loops", s.enrollLoopHandler)
	v1.GET("/loops/by-pr", s.getActiveLoopForPRHandler)
	v1.GET("/loops/by-thread", s.getActiveLoopForThreadHandler)
	v1.POST("/loops/:id/approve-plan", s.approvePlanHandler)
	v1.POST("/loops/:id/manual-stop", s.manualStopHandler)

	// Realtime WebSocket feed.
	v1.GET("/ws", s.wsHandler)
}

// Start starts the HTTP server on the given address and blocks until the
// server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener.
// Used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
