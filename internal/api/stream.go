package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// streamAlerts holds an SSE stream open and forwards newly created
// alerts until the client disconnects or the broadcaster shuts down.
// There is no server-side replay: clients load existing alerts over
// the list endpoint and use the stream for arrivals only.
func (h *Handler) streamAlerts(c *gin.Context) {
	if h.broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "streaming unavailable"})
		return
	}

	id, ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	slog.Info("client subscribed to alert stream", "subscriber_id", id)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case alert, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("alert", alert)
			return true
		}
	})

	slog.Info("client disconnected from alert stream", "subscriber_id", id)
}
