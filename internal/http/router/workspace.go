package router

import (
	"github.com/gin-gonic/gin"

	"searchlens.app/analyzer/internal/http/handler"
)

func WorkspaceRouter(rg *gin.RouterGroup, h *handler.WorkspaceHandler) {
	rg.GET("", h.List)
	rg.GET("/current", h.Current)
	rg.POST("/switch", h.Switch)
	rg.POST("/invites/accept", h.AcceptInvite)
}

// WorkspaceScopedRouter mounts the routes living under one workspace.
// The group already carries RequireWorkspace.
func WorkspaceScopedRouter(rg *gin.RouterGroup, h *handler.WorkspaceHandler) {
	rg.POST("/invites", h.Invite)
}
