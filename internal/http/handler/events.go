package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"searchlens.app/analyzer/internal/events"
	"searchlens.app/analyzer/internal/http/middleware"
)

type EventsHandler struct {
	bus *events.Bus
}

func NewEventsHandler(bus *events.Bus) *EventsHandler {
	return &EventsHandler{bus: bus}
}

// Stream bridges the workspace's Redis pub/sub channel to an SSE
// stream. The subscription lives as long as the client connection.
func (h *EventsHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	ch, cancel := h.bus.Subscribe(ctx, ws.ID)
	defer cancel()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("change", ev)
			return true
		case <-ctx.Done():
			return false
		}
	})
}
