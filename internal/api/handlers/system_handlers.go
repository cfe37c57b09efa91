package handlers

import (
	"net/http"

	"ipcam-analysis/internal/core/processor"
	"ipcam-analysis/internal/utils"

	"github.com/gin-gonic/gin"
)

// SystemHandler liefert den Zustand des Dienstes
type SystemHandler struct {
	dispatcher *processor.Dispatcher
}

// NewSystemHandler erstellt einen neuen System-Handler
func NewSystemHandler(dispatcher *processor.Dispatcher) *SystemHandler {
	return &SystemHandler{dispatcher: dispatcher}
}

// Health gibt Host- und Warteschlangenstatistiken zurück
func (h *SystemHandler) Health(c *gin.Context) {
	stats := utils.GetSystemStats(c.Request.Context(), h.dispatcher)
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"stats":  stats,
	})
}
