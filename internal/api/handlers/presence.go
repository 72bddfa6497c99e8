package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"office-realtime/internal/ws"
	"office-realtime/pkg/response"

	"github.com/gin-gonic/gin"
)

// ClusterPresence answers presence questions across every instance.
type ClusterPresence interface {
	IsUserOnline(ctx context.Context, userID string) (bool, error)
	GetOnlineUsers(ctx context.Context) ([]string, error)
}

type PresenceHandler struct {
	presence *ws.Presence
	cluster  ClusterPresence
	logger   *slog.Logger
}

// NewPresenceHandler builds the handler; cluster may be nil when presence is
// not mirrored.
func NewPresenceHandler(presence *ws.Presence, cluster ClusterPresence, logger *slog.Logger) *PresenceHandler {
	return &PresenceHandler{presence: presence, cluster: cluster, logger: logger}
}

type PresenceListResponse struct {
	Count        int                 `json:"count" example:"2"`
	Users        []string            `json:"users"`
	Connections  []ws.ConnectionInfo `json:"connections"`
	ClusterUsers []string            `json:"clusterUsers,omitempty"`
}

type UserPresenceResponse struct {
	UserID        string              `json:"userId" example:"42"`
	Connected     bool                `json:"connected" example:"true"`
	Connections   []ws.ConnectionInfo `json:"connections"`
	ClusterOnline *bool               `json:"clusterOnline,omitempty"`
}

// List godoc
// @Summary List connections
// @Description Connections admitted by this instance, and the users online anywhere when presence is mirrored.
// @Tags internal
// @Produce json
// @Security InternalKey
// @Success 200 {object} PresenceListResponse
// @Router /internal/v1/presence [get]
func (h *PresenceHandler) List(c *gin.Context) {
	resp := PresenceListResponse{
		Count:       h.presence.CountConnected(),
		Users:       h.presence.ConnectedUsers(),
		Connections: h.presence.Snapshot(),
	}
	if h.cluster != nil {
		users, err := h.cluster.GetOnlineUsers(c.Request.Context())
		if err != nil {
			h.logger.Warn("Failed to read cluster presence", "error", err)
		} else {
			resp.ClusterUsers = users
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Get godoc
// @Summary Presence of one user
// @Tags internal
// @Produce json
// @Security InternalKey
// @Param userId path string true "User ID"
// @Success 200 {object} UserPresenceResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /internal/v1/presence/{userId} [get]
func (h *PresenceHandler) Get(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, response.Error(response.ErrCodeParamInvalid, "userId is required"))
		return
	}

	resp := UserPresenceResponse{
		UserID:      userID,
		Connected:   h.presence.IsUserConnected(userID),
		Connections: h.presence.Connections(userID),
	}
	if h.cluster != nil {
		online, err := h.cluster.IsUserOnline(c.Request.Context(), userID)
		if err != nil {
			h.logger.Warn("Failed to read cluster presence", "userID", userID, "error", err)
		} else {
			resp.ClusterOnline = &online
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Disconnect godoc
// @Summary Force disconnect a user
// @Description Close every connection of the user on this instance.
// @Tags internal
// @Produce json
// @Security InternalKey
// @Param userId path string true "User ID"
// @Success 200 {object} map[string]interface{} "Number of closed connections"
// @Router /internal/v1/presence/{userId} [delete]
func (h *PresenceHandler) Disconnect(c *gin.Context) {
	userID := c.Param("userId")
	closed := h.presence.ForceDisconnect(userID)
	c.JSON(http.StatusOK, gin.H{"userId": userID, "closed": closed})
}
