package handlers

import (
	"io"
	"net/http"

	"ipcam-analysis/internal/server/sse"

	"github.com/gin-gonic/gin"
)

// EventHandler streamt Erkennungsereignisse per Server-Sent Events
type EventHandler struct {
	hub *sse.Hub
}

// NewEventHandler erstellt einen neuen Event-Handler
func NewEventHandler(hub *sse.Hub) *EventHandler {
	return &EventHandler{hub: hub}
}

// Stream hält die Verbindung offen und sendet jedes Ereignis als "detection"
func (h *EventHandler) Stream(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ctx := c.Request.Context()
	client := make(sse.Client, 10)
	if !h.hub.Register(ctx, client) {
		return
	}
	defer h.hub.Unregister(ctx, client)

	// Header sofort senden, damit der Client den Stream vor dem ersten Ereignis sieht
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-client:
			if !ok {
				return false
			}
			c.SSEvent("detection", string(msg))
			return true
		case <-ctx.Done():
			return false
		}
	})
}
