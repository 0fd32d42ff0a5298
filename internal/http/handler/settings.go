package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"searchlens.app/analyzer/internal/http/middleware"
	"searchlens.app/analyzer/internal/service"
)

type SettingsHandler struct {
	settings service.SettingsService
}

func NewSettingsHandler(settings service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// Get returns the workspace settings. The stored AI key is never
// echoed back, only whether one is set.
func (h *SettingsHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	settings, err := h.settings.GetWorkspace(ctx, ws.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to get settings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get settings"})
		return
	}

	resp := gin.H{
		"has_ai_api_key": settings.AIAPIKey != nil && *settings.AIAPIKey != "",
	}
	if settings.ActiveSnapshotID != nil {
		resp["active_snapshot_id"] = strconv.FormatInt(*settings.ActiveSnapshotID, 10)
	}
	c.JSON(http.StatusOK, resp)
}

type setAIKeyRequest struct {
	APIKey *string `json:"api_key"`
}

// SetAIKey stores or clears the workspace AI key override. A null key
// falls the workspace back to the environment default.
func (h *SettingsHandler) SetAIKey(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	var req setAIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.APIKey != nil && *req.APIKey == "" {
		req.APIKey = nil
	}

	if err := h.settings.SetAIAPIKey(ctx, ws.ID, req.APIKey); err != nil {
		slog.ErrorContext(ctx, "failed to update AI key", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "settings updated"})
}
