package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"searchlens.app/analyzer/internal/docpipe"
	"searchlens.app/analyzer/internal/http/middleware"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/service"
)

const maxDocumentBytes = 32 << 20

type KnowledgeHandler struct {
	knowledge service.KnowledgeService
}

func NewKnowledgeHandler(knowledge service.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{knowledge: knowledge}
}

type knowledgeResponse struct {
	ID         string `json:"id"`
	FileName   string `json:"file_name"`
	Summary    string `json:"summary"`
	UploadedAt string `json:"uploaded_at"`
	Content    string `json:"content,omitempty"`
}

func toKnowledgeResponse(item *model.KnowledgeItem, includeContent bool) knowledgeResponse {
	resp := knowledgeResponse{
		ID:         strconv.FormatInt(item.ID, 10),
		FileName:   item.FileName,
		Summary:    item.Summary,
		UploadedAt: item.UploadedAt.Format(time.RFC3339),
	}
	if includeContent {
		resp.Content = item.ExtractedContent
	}
	return resp
}

func (h *KnowledgeHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxDocumentBytes)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	item, err := h.knowledge.Upload(ctx, ws.ID, header.Filename, file)
	if err != nil {
		if errors.Is(err, docpipe.ErrNoText) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no extractable text in document"})
			return
		}
		slog.ErrorContext(ctx, "failed to process document", "error", err, "file_name", header.Filename)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to process document"})
		return
	}

	c.JSON(http.StatusCreated, toKnowledgeResponse(item, false))
}

func (h *KnowledgeHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	items, err := h.knowledge.List(ctx, ws.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list knowledge items", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list knowledge items"})
		return
	}

	resp := make([]knowledgeResponse, len(items))
	for i := range items {
		resp[i] = toKnowledgeResponse(&items[i], false)
	}
	c.JSON(http.StatusOK, gin.H{"items": resp})
}

func (h *KnowledgeHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item ID"})
		return
	}

	item, err := h.knowledge.Get(ctx, ws.ID, itemID)
	if err != nil {
		if errors.Is(err, service.ErrKnowledgeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "knowledge item not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to get knowledge item", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get knowledge item"})
		return
	}

	c.JSON(http.StatusOK, toKnowledgeResponse(item, true))
}

func (h *KnowledgeHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item ID"})
		return
	}

	if err := h.knowledge.Delete(ctx, ws.ID, itemID); err != nil {
		if errors.Is(err, service.ErrKnowledgeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "knowledge item not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to delete knowledge item", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete knowledge item"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "knowledge item deleted"})
}
