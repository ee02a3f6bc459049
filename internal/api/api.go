// Package api exposes the agent over HTTP: analysis and chat operations, a
// WebSocket event feed, and session management.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Tengfei-Z/AiTrader/internal/agents"
	"github.com/Tengfei-Z/AiTrader/internal/events"
	"github.com/Tengfei-Z/AiTrader/pkg/logger"
)

const (
	DefaultTimeout      = 120 * time.Second
	ServiceName         = "aitrader-agent"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
)

// AgentService is the loop surface the API exposes.
type AgentService interface {
	Analyze(ctx context.Context, req agents.AnalyzeRequest) (*agents.AnalyzeResponse, error)
	Chat(ctx context.Context, req agents.ChatRequest) (*agents.ChatResponse, error)
	ClearSession(sessionID string)
}

// Handler routes HTTP requests to the agent service.
type Handler struct {
	agent    AgentService
	notifier *events.Notifier
	log      *logger.Logger
}

// NewHandler constructs the API handler.
func NewHandler(agent AgentService, notifier *events.Notifier) *Handler {
	return &Handler{
		agent:    agent,
		notifier: notifier,
		log:      logger.Get().With("component", "api"),
	}
}

// Router configures the gin engine with all routes and middleware.
func (h *Handler) Router(env string) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(h.loggerMiddleware())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", h.HealthCheck)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/chat", h.Chat)
		apiGroup.POST("/analysis", h.Analyze)
		apiGroup.DELETE("/chat/sessions/:id", h.ClearSession)
		apiGroup.GET("/events/ws", h.EventsWS)
	}

	return router
}
