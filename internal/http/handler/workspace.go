package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"searchlens.app/analyzer/internal/http/middleware"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/service"
)

type WorkspaceHandler struct {
	wsService service.WorkspaceService
}

func NewWorkspaceHandler(wsService service.WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{wsService: wsService}
}

type workspaceResponse struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

func toWorkspaceResponse(ws *model.Workspace) workspaceResponse {
	return workspaceResponse{
		ID:      strconv.FormatInt(ws.ID, 10),
		Name:    ws.Name,
		Members: ws.Members,
	}
}

// Current resolves the workspace the session should operate in,
// creating the user's default workspace on first touch.
func (h *WorkspaceHandler) Current(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.GetUser(ctx)

	ws, err := h.wsService.Resolve(ctx, user)
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve workspace", "error", err, "user_id", user.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve workspace"})
		return
	}

	c.JSON(http.StatusOK, toWorkspaceResponse(ws))
}

func (h *WorkspaceHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.GetUser(ctx)

	workspaces, err := h.wsService.List(ctx, user.Email)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list workspaces", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list workspaces"})
		return
	}

	resp := make([]workspaceResponse, len(workspaces))
	for i := range workspaces {
		resp[i] = toWorkspaceResponse(&workspaces[i])
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": resp})
}

type switchWorkspaceRequest struct {
	WorkspaceID string `json:"workspace_id" binding:"required"`
}

func (h *WorkspaceHandler) Switch(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.GetUser(ctx)

	var req switchWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace_id is required"})
		return
	}
	workspaceID, err := strconv.ParseInt(req.WorkspaceID, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workspace ID"})
		return
	}

	ws, err := h.wsService.Switch(ctx, user, workspaceID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWorkspaceNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
		case errors.Is(err, service.ErrNotAMember):
			c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this workspace"})
		default:
			slog.ErrorContext(ctx, "failed to switch workspace", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to switch workspace"})
		}
		return
	}

	c.JSON(http.StatusOK, toWorkspaceResponse(ws))
}

type inviteRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type inviteResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	InviteURL string `json:"invite_url"`
	ExpiresAt string `json:"expires_at"`
}

func (h *WorkspaceHandler) Invite(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.GetUser(ctx)
	ws := middleware.GetWorkspace(ctx)

	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: email is required"})
		return
	}

	inv, inviteURL, err := h.wsService.Invite(ctx, ws.ID, req.Email, &user.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create invitation", "error", err, "email", req.Email)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create invitation"})
		return
	}

	c.JSON(http.StatusCreated, inviteResponse{
		ID:        strconv.FormatInt(inv.ID, 10),
		Email:     inv.Email,
		InviteURL: inviteURL,
		ExpiresAt: inv.ExpiresAt.Format(time.RFC3339),
	})
}

type acceptInviteRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *WorkspaceHandler) AcceptInvite(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.GetUser(ctx)

	var req acceptInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	ws, err := h.wsService.AcceptInvite(ctx, req.Token, user)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInviteNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "invitation not found", "code": "invite_not_found"})
		case errors.Is(err, service.ErrInviteExpired):
			c.JSON(http.StatusGone, gin.H{"error": "this invitation has expired", "code": "invite_expired"})
		case errors.Is(err, service.ErrInviteAlreadyUsed):
			c.JSON(http.StatusGone, gin.H{"error": "this invitation has already been used", "code": "invite_used"})
		case errors.Is(err, service.ErrEmailMismatch):
			c.JSON(http.StatusForbidden, gin.H{
				"error": "the email you signed in with doesn't match the invitation",
				"code":  "email_mismatch",
			})
		default:
			slog.ErrorContext(ctx, "failed to accept invitation", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to accept invitation"})
		}
		return
	}

	c.JSON(http.StatusOK, toWorkspaceResponse(ws))
}
