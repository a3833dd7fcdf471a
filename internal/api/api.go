// Package api provides the local HTTP control plane for batch key validation.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LiquorXR/gemini-synapse/internal/adminapi"
	"github.com/LiquorXR/gemini-synapse/internal/config"
	"github.com/LiquorXR/gemini-synapse/internal/dashboard"
	"github.com/LiquorXR/gemini-synapse/internal/validation"
)

const heartbeatInterval = 15 * time.Second

// AuthChecker reports whether the admin session is still accepted.
// *adminapi.Client satisfies it.
type AuthChecker interface {
	CheckAuth(ctx context.Context) (bool, error)
}

// Deps are the collaborators the control API drives.
type Deps struct {
	Machine    *validation.Machine
	Supervisor *validation.Supervisor
	Store      *dashboard.Store
	Hub        *Hub
	Auth       AuthChecker
}

// Server represents the HTTP API server.
type Server struct {
	config config.ServerConfig
	deps   Deps
	logger *zap.SugaredLogger
	router *gin.Engine
}

// New creates a new API server.
func New(cfg config.ServerConfig, deps Deps, logger *zap.SugaredLogger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger,
		router: gin.New(),
	}

	s.setupRoutes()
	return s
}

// Router returns the gin router.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	if len(s.config.AllowedOrigins) > 0 {
		s.router.Use(corsMiddleware(s.config.AllowedOrigins))
	}

	// Health endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ready", s.readyHandler)

	// API v1
	v1 := s.router.Group("/api/v1")
	if s.config.JWTSecret != "" {
		v1.Use(authMiddleware(s.config.JWTSecret))
	}
	{
		v1.GET("/dashboard", s.dashboardHandler)
		v1.POST("/dashboard/refresh", s.refreshHandler)
		v1.GET("/keys", s.keysHandler)
		v1.GET("/selection", s.getSelectionHandler)
		v1.PUT("/selection", s.putSelectionHandler)

		v1.POST("/validation/start", s.startValidationHandler)
		v1.POST("/validation/abort", s.abortValidationHandler)
		v1.POST("/validation/ack", s.ackValidationHandler)
		v1.GET("/validation/status", s.validationStatusHandler)
		v1.GET("/validation/events", s.validationEventsHandler)
	}
}

// Health check handler
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "synapse-admin",
	})
}

// Readiness check handler: ready once the admin session is accepted upstream.
func (s *Server) readyHandler(c *gin.Context) {
	ok, err := s.deps.Auth.CheckAuth(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unauthenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"service": "synapse-admin",
	})
}

func (s *Server) dashboardHandler(c *gin.Context) {
	if !s.ensureLoaded(c) {
		return
	}
	data, fetchedAt, _ := s.deps.Store.Data()
	c.JSON(http.StatusOK, DashboardResponse{Data: data, FetchedAt: fetchedAt})
}

func (s *Server) refreshHandler(c *gin.Context) {
	if err := s.deps.Store.Refresh(c.Request.Context()); err != nil {
		s.upstreamError(c, err)
		return
	}
	data, fetchedAt, _ := s.deps.Store.Data()
	c.JSON(http.StatusOK, DashboardResponse{Data: data, FetchedAt: fetchedAt})
}

func (s *Server) keysHandler(c *gin.Context) {
	list, err := validation.ParseList(c.DefaultQuery("list", string(validation.ListValid)))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if !s.ensureLoaded(c) {
		return
	}

	keys := s.deps.Store.Keys(list)
	if keys == nil {
		keys = []adminapi.APIKey{}
	}
	c.JSON(http.StatusOK, KeysResponse{
		List:     string(list),
		Keys:     keys,
		Selected: fromKeyIDs(s.deps.Store.Selected()),
		Count:    len(keys),
	})
}

func (s *Server) getSelectionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"key_ids": fromKeyIDs(s.deps.Store.Selected())})
}

func (s *Server) putSelectionHandler(c *gin.Context) {
	var req SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "key_ids required"})
		return
	}
	if !s.ensureLoaded(c) {
		return
	}
	if err := s.deps.Store.SetSelection(toKeyIDs(req.KeyIDs)); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key_ids": fromKeyIDs(s.deps.Store.Selected())})
}

func (s *Server) startValidationHandler(c *gin.Context) {
	var req StartValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if (req.List == "") == !req.Selected {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "exactly one of list or selected is required"})
		return
	}

	sup := s.deps.Supervisor.WithConfirmer(validation.Preconfirmed(req.Confirm))
	ctx := c.Request.Context()

	var (
		snap        validation.Snapshot
		err         error
		emptyNotice string
	)
	if req.Selected {
		emptyNotice = validation.NoticeEmptySelected
		snap, err = sup.ValidateSelected(ctx)
	} else {
		list, perr := validation.ParseList(req.List)
		if perr != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: perr.Error()})
			return
		}
		if !s.ensureLoaded(c) {
			return
		}
		emptyNotice = validation.NoticeEmptyList
		snap, err = sup.ValidateAllInList(ctx, list)
	}

	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, sessionResponse(snap))
	case errors.Is(err, validation.ErrSessionActive):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Notice: validation.NoticeSessionActive, Session: &snap})
	case errors.Is(err, validation.ErrEmptyRequest):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Notice: emptyNotice})
	case errors.Is(err, validation.ErrDeclined):
		c.JSON(http.StatusPreconditionFailed, ErrorResponse{Error: "confirmation required: set confirm to true"})
	default:
		s.logger.Errorw("Failed to start validation", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

func (s *Server) abortValidationHandler(c *gin.Context) {
	before := s.deps.Machine.Snapshot()
	after := s.deps.Machine.Abort()
	if before.Phase != validation.PhaseIdle {
		s.logger.Infow("Validation abort requested", "session", before.ID, "phase", before.Phase.String())
	}
	c.JSON(http.StatusOK, sessionResponse(after))
}

func (s *Server) ackValidationHandler(c *gin.Context) {
	var req AckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "session_id required"})
		return
	}
	if !s.deps.Machine.Acknowledge(req.SessionID) {
		snap := s.deps.Machine.Snapshot()
		c.JSON(http.StatusConflict, ErrorResponse{Error: "session is not awaiting acknowledgement", Session: &snap})
		return
	}
	c.JSON(http.StatusOK, sessionResponse(s.deps.Machine.Snapshot()))
}

func (s *Server) validationStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		SessionResponse: sessionResponse(s.deps.Machine.Snapshot()),
		LastTerminal:    s.deps.Hub.LastTerminal(),
	})
}

// validationEventsHandler relays session views as server-sent events. The
// stream ends when a watched session returns to idle or the client leaves.
func (s *Server) validationEventsHandler(c *gin.Context) {
	events, unsubscribe := s.deps.Hub.subscribe()
	defer unsubscribe()

	current := sessionResponse(s.deps.Machine.Snapshot())
	watching := current.Session.Phase != validation.PhaseIdle

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(eventSession, current)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-heartbeat.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			return true
		case ev, ok := <-events:
			if !ok {
				return false
			}
			switch ev.Name {
			case eventNotice:
				c.SSEvent(eventNotice, ev.Notice)
				return true
			case eventSession:
				c.SSEvent(eventSession, ev.Session)
				if ev.Session.Session.Phase == validation.PhaseIdle {
					return !watching
				}
				watching = true
			}
			return true
		}
	})
}

// ensureLoaded fetches the dashboard once if nothing is cached yet.
func (s *Server) ensureLoaded(c *gin.Context) bool {
	if _, _, err := s.deps.Store.Data(); err == nil {
		return true
	}
	if err := s.deps.Store.Refresh(c.Request.Context()); err != nil {
		s.upstreamError(c, err)
		return false
	}
	return true
}

func (s *Server) upstreamError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, adminapi.ErrUnauthorized) {
		status = http.StatusUnauthorized
	}
	s.logger.Warnw("Admin API request failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(status, ErrorResponse{Error: err.Error()})
}
