package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"office-realtime/internal/ingest"
	"office-realtime/pkg/response"

	"github.com/gin-gonic/gin"
)

type CommandApplier interface {
	Apply(ctx context.Context, cmd ingest.Command) error
}

type EventsHandler struct {
	applier CommandApplier
	logger  *slog.Logger
}

func NewEventsHandler(applier CommandApplier, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{applier: applier, logger: logger}
}

// Publish godoc
// @Summary Publish a realtime event
// @Description Hand a command to the realtime core. Acceptance does not mean any client received it.
// @Tags internal
// @Accept json
// @Produce json
// @Security InternalKey
// @Param request body ingest.Command true "Command"
// @Success 202 {object} map[string]string "Command accepted"
// @Failure 400 {object} response.ErrorResponse "Invalid or unknown command"
// @Failure 403 {object} response.ErrorResponse "Missing or invalid internal key"
// @Failure 503 {object} response.ErrorResponse "Access cache unavailable"
// @Router /internal/v1/events [post]
func (h *EventsHandler) Publish(c *gin.Context) {
	var cmd ingest.Command
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.ErrCodeInvalidCommand, err.Error()))
		return
	}

	if err := h.applier.Apply(c.Request.Context(), cmd); err != nil {
		if errors.Is(err, ingest.ErrUnavailable) {
			h.logger.Warn("Command failed", "type", cmd.Type, "error", err)
			c.JSON(http.StatusServiceUnavailable, response.Error(response.ErrCodeUnavailable, err.Error()))
			return
		}
		code := response.ErrCodeInvalidCommand
		if errors.Is(err, ingest.ErrUnknownCommand) {
			code = response.ErrCodeUnknownCommand
		}
		h.logger.Info("Command rejected", "type", cmd.Type, "error", err)
		c.JSON(http.StatusBadRequest, response.Error(code, err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "type": cmd.Type})
}
