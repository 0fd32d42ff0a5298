package router

import (
	"github.com/gin-gonic/gin"

	"searchlens.app/analyzer/internal/http/handler"
)

func SnapshotRouter(rg *gin.RouterGroup, h *handler.SnapshotHandler) {
	rg.POST("", h.Upload)
	rg.GET("", h.List)
	rg.GET("/active", h.Active)
	rg.GET("/view", h.View)
	rg.GET("/:snapshotId", h.Get)
	rg.DELETE("/:snapshotId", h.Delete)
	rg.POST("/:snapshotId/activate", h.Activate)
	rg.PUT("/:snapshotId/date-range", h.SetDateRange)
}
