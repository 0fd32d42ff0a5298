package router

import (
	"github.com/gin-gonic/gin"

	"searchlens.app/analyzer/internal/http/handler"
)

func ShareRouter(rg *gin.RouterGroup, h *handler.ShareHandler) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.DELETE("/:shareId", h.Revoke)
}
