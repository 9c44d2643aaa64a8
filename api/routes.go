package api

import (
	authhandler "gedvault/api/handlers/auth"
	"gedvault/api/handlers/permissions"
	"gedvault/api/handlers/workflows"
	"gedvault/internal/auth"
	"gedvault/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter 构建 HTTP 路由
func NewRouter(cfg *config.Config, container *AppContainer) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), Metrics(), CORS())

	// 系统端点
	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(container.DB))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := authhandler.NewHandler(container.Users, container.JWTService)
	permHandler := permissions.NewHandler(container.Documents, container.Permissions)
	wfHandler := workflows.NewHandler(container.Workflows, container.Engine)

	// 认证 API（公开，不需要 JWT）
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// 业务 API
	apiV1 := router.Group("/api/v1")
	apiV1.Use(auth.AuthMiddleware(container.JWTService))
	registerPermissionRoutes(apiV1, permHandler, wfHandler)
	registerWorkflowRoutes(apiV1, wfHandler)

	return router
}

// registerPermissionRoutes 文档权限与共享路由
func registerPermissionRoutes(apiGroup *gin.RouterGroup, h *permissions.Handler, wf *workflows.Handler) {
	documents := apiGroup.Group("/documents")
	{
		documents.GET("/shared-with-me", h.SharedWithMe)

		documents.POST("/:id/permissions", h.Grant)
		documents.GET("/:id/permissions", h.List)
		documents.GET("/:id/permissions/check", h.Check)
		documents.DELETE("/:id/permissions/:user_id", h.RevokeAll)
		documents.DELETE("/:id/permissions/:user_id/:kind", h.Revoke)

		documents.POST("/:id/share", h.Share)
		documents.DELETE("/:id/share/:user_id", h.Unshare)

		documents.GET("/:id/approvals", wf.ByDocument)
	}

	apiGroup.GET("/permissions/mine", h.MyGrants)
}

// registerWorkflowRoutes 工作流与审批路由
func registerWorkflowRoutes(apiGroup *gin.RouterGroup, h *workflows.Handler) {
	wfGroup := apiGroup.Group("/workflows")
	{
		wfGroup.POST("", h.Create)
		wfGroup.GET("", h.List)
		wfGroup.GET("/:id", h.Get)
		wfGroup.PUT("/:id", h.Update)
	}

	approvals := apiGroup.Group("/approvals")
	{
		approvals.POST("", h.Submit)
		approvals.GET("/pending", h.Pending)
		approvals.POST("/:id/approve", h.Approve)
		approvals.POST("/:id/reject", h.Reject)
		approvals.GET("/:id/history", h.History)
	}
}
