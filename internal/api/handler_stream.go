package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const streamKeepAlive = 25 * time.Second

// StreamRequests handles GET /api/requests/stream. It relays change and notification messages as
// server-sent events until the client disconnects. With scope=mine only the caller's requests are sent.
func (h *Handler) StreamRequests(c *gin.Context) {
	if h.broker == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "change feed is not enabled"})
		return
	}
	userID, ok := scopeUserID(c)
	if !ok {
		return
	}

	msgs, cancel := h.broker.Subscribe(32)
	defer cancel()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	// Set before the first step: c.Stream flushes headers even when a step writes nothing.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case msg, ok := <-msgs:
			if !ok {
				return false
			}
			if userID != "" && msg.UserID != userID {
				return true
			}
			c.SSEvent(msg.Type, msg)
			return true
		}
	})
}
