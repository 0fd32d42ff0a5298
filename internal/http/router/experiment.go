package router

import (
	"github.com/gin-gonic/gin"

	"searchlens.app/analyzer/internal/http/handler"
)

func ExperimentRouter(rg *gin.RouterGroup, h *handler.ExperimentHandler) {
	rg.POST("", h.Start)
	rg.GET("", h.List)
	rg.GET("/:experimentId", h.Get)
	rg.POST("/:experimentId/complete", h.Complete)
}
