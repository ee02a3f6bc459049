package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Tengfei-Z/AiTrader/internal/agents"
	"github.com/Tengfei-Z/AiTrader/pkg/errors"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Analyze handles POST /api/analysis.
func (h *Handler) Analyze(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	var req agents.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	resp, err := h.agent.Analyze(ctx, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Chat handles POST /api/chat.
func (h *Handler) Chat(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	var req agents.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	resp, err := h.agent.Chat(ctx, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ClearSession handles DELETE /api/chat/sessions/:id.
func (h *Handler) ClearSession(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id is required"})
		return
	}
	h.agent.ClearSession(sessionID)
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "cleared": true})
}

// EventsWS handles GET /api/events/ws: upgrades the connection and streams
// order notifications until the client goes away.
func (h *Handler) EventsWS(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	h.notifier.Subscribe(conn)

	// Drain the read side to notice disconnects; broadcasts happen on the
	// notifier's write path.
	go func() {
		defer h.notifier.Unsubscribe(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"service":   ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// respondError maps domain error kinds onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrValidation), errors.Is(err, errors.ErrUnknownTool):
		status = http.StatusBadRequest
	case errors.Is(err, errors.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, errors.ErrExternalService):
		status = http.StatusBadGateway
	}

	h.log.Errorw("request failed",
		"request_id", c.GetString(RequestIDContextKey),
		"status", status,
		"error", err,
	)
	c.JSON(status, gin.H{"error": err.Error()})
}
