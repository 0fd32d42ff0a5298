package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"searchlens.app/analyzer/internal/http/middleware"
	"searchlens.app/analyzer/internal/service"
)

type ShareHandler struct {
	shares service.ShareService
}

func NewShareHandler(shares service.ShareService) *ShareHandler {
	return &ShareHandler{shares: shares}
}

type createShareRequest struct {
	SnapshotID string `json:"snapshot_id" binding:"required"`
}

type shareResponse struct {
	ID         string `json:"id"`
	SnapshotID string `json:"snapshot_id"`
	ShareURL   string `json:"share_url,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func (h *ShareHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.GetUser(ctx)
	ws := middleware.GetWorkspace(ctx)

	var req createShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "snapshot_id is required"})
		return
	}
	snapshotID, err := strconv.ParseInt(req.SnapshotID, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot ID"})
		return
	}

	share, shareURL, err := h.shares.Create(ctx, ws.ID, snapshotID, user.ID)
	if err != nil {
		if errors.Is(err, service.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to create share", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create share"})
		return
	}

	c.JSON(http.StatusCreated, shareResponse{
		ID:         share.ID,
		SnapshotID: strconv.FormatInt(share.SnapshotID, 10),
		ShareURL:   shareURL,
		CreatedAt:  share.CreatedAt.Format(time.RFC3339),
	})
}

func (h *ShareHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	shares, err := h.shares.List(ctx, ws.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list shares", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list shares"})
		return
	}

	resp := make([]shareResponse, len(shares))
	for i, share := range shares {
		resp[i] = shareResponse{
			ID:         share.ID,
			SnapshotID: strconv.FormatInt(share.SnapshotID, 10),
			CreatedAt:  share.CreatedAt.Format(time.RFC3339),
		}
	}
	c.JSON(http.StatusOK, gin.H{"shares": resp})
}

func (h *ShareHandler) Revoke(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	shareID := c.Param("shareId")
	if err := h.shares.Revoke(ctx, ws.ID, shareID); err != nil {
		if errors.Is(err, service.ErrShareNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "share not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to revoke share", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke share"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "share revoked"})
}

// Resolve is the public read-only path behind a share link. No session
// is required; a valid token yields exactly one snapshot.
func (h *ShareHandler) Resolve(c *gin.Context) {
	ctx := c.Request.Context()

	snap, err := h.shares.Resolve(ctx, c.Param("shareId"))
	if err != nil {
		if errors.Is(err, service.ErrShareNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "share not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to resolve share", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve share"})
		return
	}

	c.JSON(http.StatusOK, toSnapshotResponse(snap, true))
}
