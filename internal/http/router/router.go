package router

import (
	"github.com/gin-gonic/gin"

	"searchlens.app/analyzer/internal/events"
	"searchlens.app/analyzer/internal/http/handler"
	"searchlens.app/analyzer/internal/http/middleware"
	"searchlens.app/analyzer/internal/service"
)

type RouterConfig struct {
	DashboardURL string
	IsProduction bool
}

func SetupRoutes(router *gin.Engine, services *service.Services, bus *events.Bus, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	authService := services.Auth()
	workspaceService := services.Workspaces()

	authHandler := handler.NewAuthHandler(authService, cfg.DashboardURL, cfg.IsProduction)
	AuthRouter(router.Group("/auth"), authHandler, authService)

	// Share links resolve without a session.
	shareHandler := handler.NewShareHandler(services.Shares())
	router.GET("/share/:shareId", shareHandler.Resolve)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireAuth(authService))
	{
		wsHandler := handler.NewWorkspaceHandler(workspaceService)
		WorkspaceRouter(v1.Group("/workspaces"), wsHandler)

		scoped := v1.Group("/workspaces/:workspaceId")
		scoped.Use(middleware.RequireWorkspace(workspaceService))
		{
			WorkspaceScopedRouter(scoped, wsHandler)

			snapshotHandler := handler.NewSnapshotHandler(services.Snapshots(), services.Experiments(), services.Insights())
			SnapshotRouter(scoped.Group("/snapshots"), snapshotHandler)

			insightHandler := handler.NewInsightHandler(services.Insights(), services.Enrichment())
			InsightRouter(scoped.Group("/insights"), insightHandler)

			experimentHandler := handler.NewExperimentHandler(services.Experiments())
			ExperimentRouter(scoped.Group("/experiments"), experimentHandler)

			knowledgeHandler := handler.NewKnowledgeHandler(services.Knowledge())
			KnowledgeRouter(scoped.Group("/knowledge"), knowledgeHandler)

			ShareRouter(scoped.Group("/shares"), shareHandler)

			settingsHandler := handler.NewSettingsHandler(services.Settings())
			scoped.GET("/settings", settingsHandler.Get)
			scoped.PUT("/settings/ai-key", settingsHandler.SetAIKey)

			if bus != nil {
				eventsHandler := handler.NewEventsHandler(bus)
				scoped.GET("/events", eventsHandler.Stream)
			}
		}
	}
}
