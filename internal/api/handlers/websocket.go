package handlers

import (
	"context"
	"net/http"

	"office-realtime/internal/api/middleware"
	"office-realtime/internal/ws"
	"office-realtime/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	hub      *ws.Hub
	upgrader *websocket.Upgrader
	config   ws.ClientConfig
}

func NewWSHandler(hub *ws.Hub, upgrader *websocket.Upgrader, config ws.ClientConfig) *WSHandler {
	return &WSHandler{hub: hub, upgrader: upgrader, config: config}
}

// HandleWebSocket godoc
// @Summary WebSocket connection
// @Description Upgrade an authenticated request to the realtime event stream. The access token is read from the token query parameter or the Authorization header.
// @Tags websocket
// @Param token query string false "Access token"
// @Param Authorization header string false "Bearer access token"
// @Success 101 "Switching Protocols - WebSocket connection established"
// @Failure 401 {object} response.ErrorResponse "Missing, expired or non-access credential"
// @Failure 429 {object} response.ErrorResponse "Too many handshakes from this address"
// @Router /api/v1/ws [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(response.ErrCodeUnauthenticated, "credential is required"))
		return
	}

	// The request context ends with this handler; the connection outlives it.
	ctx := context.WithoutCancel(c.Request.Context())
	ws.ServeWS(ctx, h.hub, h.upgrader, h.config, c.Writer, c.Request, p)
}
