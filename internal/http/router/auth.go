package router

import (
	"github.com/gin-gonic/gin"

	"searchlens.app/analyzer/internal/http/handler"
	"searchlens.app/analyzer/internal/http/middleware"
	"searchlens.app/analyzer/internal/service"
)

func AuthRouter(rg *gin.RouterGroup, h *handler.AuthHandler, authService service.AuthService) {
	rg.GET("/login", h.Login)
	rg.GET("/callback", h.Callback)
	rg.POST("/logout", h.Logout)
	rg.GET("/me", middleware.RequireAuth(authService), h.Me)
}
