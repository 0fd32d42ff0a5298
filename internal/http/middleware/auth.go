package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"searchlens.app/analyzer/common/logger"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/service"
)

type contextKey string

const (
	SessionCookieName = "analyzer_session"

	userContextKey      contextKey = "user"
	sessionIDContextKey contextKey = "session_id"
	workspaceContextKey contextKey = "workspace"
)

// RequireAuth validates the session cookie and attaches the user to the
// request context.
func RequireAuth(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := getSessionID(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		user, err := authService.ValidateSession(c.Request.Context(), sessionID)
		if err != nil {
			if errors.Is(err, service.ErrSessionExpired) || errors.Is(err, service.ErrUserNotFound) {
				clearSessionCookie(c)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to validate session"})
			return
		}

		ctx := context.WithValue(c.Request.Context(), userContextKey, user)
		ctx = context.WithValue(ctx, sessionIDContextKey, sessionID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireWorkspace resolves the :workspaceId path parameter and checks
// the authenticated user's membership. Runs after RequireAuth.
func RequireWorkspace(workspaceService service.WorkspaceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := GetUser(c.Request.Context())
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		workspaceID, err := strconv.ParseInt(c.Param("workspaceId"), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid workspace ID"})
			return
		}

		ws, err := workspaceService.Get(c.Request.Context(), workspaceID, user.Email)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrWorkspaceNotFound):
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
			case errors.Is(err, service.ErrNotAMember):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a member of this workspace"})
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve workspace"})
			}
			return
		}

		ctx := context.WithValue(c.Request.Context(), workspaceContextKey, ws)
		ctx = logger.WithLogFields(ctx, logger.LogFields{WorkspaceID: logger.Ptr(ws.ID)})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func GetUser(ctx context.Context) *model.User {
	user, _ := ctx.Value(userContextKey).(*model.User)
	return user
}

func GetSessionID(ctx context.Context) int64 {
	sessionID, _ := ctx.Value(sessionIDContextKey).(int64)
	return sessionID
}

func GetWorkspace(ctx context.Context) *model.Workspace {
	ws, _ := ctx.Value(workspaceContextKey).(*model.Workspace)
	return ws
}

func getSessionID(c *gin.Context) (int64, error) {
	cookie, err := c.Cookie(SessionCookieName)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(cookie, 10, 64)
}

func clearSessionCookie(c *gin.Context) {
	c.SetCookie(
		SessionCookieName,
		"",
		-1,
		"/",
		"",
		false,
		true,
	)
}
