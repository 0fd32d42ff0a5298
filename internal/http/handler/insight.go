package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"searchlens.app/analyzer/common/llm"
	"searchlens.app/analyzer/internal/http/middleware"
	"searchlens.app/analyzer/internal/service"
)

type InsightHandler struct {
	insights   service.InsightService
	enrichment service.EnrichmentService
}

func NewInsightHandler(insights service.InsightService, enrichment service.EnrichmentService) *InsightHandler {
	return &InsightHandler{
		insights:   insights,
		enrichment: enrichment,
	}
}

// Summarize runs the AI performance analysis over the active snapshot.
func (h *InsightHandler) Summarize(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	summary, err := h.insights.Summarize(ctx, ws.ID)
	if err != nil {
		h.renderInsightError(c, err, "failed to generate summary")
		return
	}

	c.JSON(http.StatusOK, summary)
}

type suggestMetaRequest struct {
	PageURL string `json:"page_url" binding:"required"`
}

func (h *InsightHandler) SuggestMeta(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	var req suggestMetaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page_url is required"})
		return
	}

	suggestion, err := h.insights.SuggestMeta(ctx, ws.ID, req.PageURL)
	if err != nil {
		h.renderInsightError(c, err, "failed to generate suggestion")
		return
	}

	c.JSON(http.StatusOK, suggestion)
}

type enrichPageRequest struct {
	PageURL string `json:"page_url" binding:"required"`
}

// EnrichPage fetches live metadata for one page of the active snapshot.
func (h *InsightHandler) EnrichPage(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	var req enrichPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page_url is required"})
		return
	}

	meta, err := h.enrichment.EnrichPage(ctx, ws.ID, req.PageURL)
	if err != nil {
		h.renderInsightError(c, err, "failed to fetch metadata")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"title":       meta.Title,
		"description": meta.Description,
		"failed":      meta.Failed(),
	})
}

// EnrichAll fetches live metadata for every page still missing it.
func (h *InsightHandler) EnrichAll(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	result, err := h.enrichment.EnrichAll(ctx, ws.ID)
	if err != nil {
		h.renderInsightError(c, err, "failed to fetch metadata")
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *InsightHandler) renderInsightError(c *gin.Context, err error, fallback string) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, service.ErrNoActiveData):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "page not found in active snapshot"})
	case errors.Is(err, llm.ErrMissingAPIKey):
		c.JSON(http.StatusPreconditionFailed, gin.H{
			"error": "no AI API key configured",
			"code":  "missing_api_key",
		})
	case llm.IsAuthError(err):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "AI provider rejected the API key",
			"code":  "invalid_api_key",
		})
	case errors.Is(err, llm.ErrMalformedResponse):
		slog.WarnContext(ctx, "model returned malformed output", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "AI response could not be parsed"})
	default:
		slog.ErrorContext(ctx, fallback, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
