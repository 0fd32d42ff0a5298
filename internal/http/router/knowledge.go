package router

import (
	"github.com/gin-gonic/gin"

	"searchlens.app/analyzer/internal/http/handler"
)

func KnowledgeRouter(rg *gin.RouterGroup, h *handler.KnowledgeHandler) {
	rg.POST("", h.Upload)
	rg.GET("", h.List)
	rg.GET("/:itemId", h.Get)
	rg.DELETE("/:itemId", h.Delete)
}
