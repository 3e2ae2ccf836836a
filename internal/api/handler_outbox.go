package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"clientportal/pkg/outbox"
)

type OutboxHandler struct {
	repo   *outbox.Repository
	replay *outbox.ReplayService
}

func NewOutboxHandler(repo *outbox.Repository, replay *outbox.ReplayService) *OutboxHandler {
	return &OutboxHandler{
		repo:   repo,
		replay: replay,
	}
}

// ListFailed handles GET /outbox/failed (admin only).
func (h *OutboxHandler) ListFailed(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	events, err := h.repo.GetFailedEvents(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list outbox events"})
		return
	}

	out := make([]gin.H, 0, len(events))
	for _, e := range events {
		out = append(out, gin.H{
			"id":          e.ID,
			"routing_key": e.RoutingKey,
			"retry_count": e.RetryCount,
			"created_at":  e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

// Replay handles POST /outbox/:id/replay (admin only).
func (h *OutboxHandler) Replay(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	if err := h.replay.ReplayEvent(c.Request.Context(), eventID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to replay event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "replayed"})
}
