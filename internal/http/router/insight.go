package router

import (
	"github.com/gin-gonic/gin"

	"searchlens.app/analyzer/internal/http/handler"
)

func InsightRouter(rg *gin.RouterGroup, h *handler.InsightHandler) {
	rg.POST("/summary", h.Summarize)
	rg.POST("/meta-suggestion", h.SuggestMeta)
	rg.POST("/metadata", h.EnrichPage)
	rg.POST("/metadata/refresh-all", h.EnrichAll)
}
