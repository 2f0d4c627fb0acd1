package app

import (
	"learnmate_backend/internal/config"
	"learnmate_backend/internal/middleware"
	"learnmate_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		// 评估会话
		sessions := authGroup.Group("/sessions")
		{
			sessions.POST("", c.session.Create)
			sessions.GET("/:id", c.session.Get)
			sessions.POST("/:id/start", c.session.Start)
			sessions.POST("/:id/answers", c.session.RecordAnswer)
			sessions.POST("/:id/advance", c.session.Advance)
			sessions.POST("/:id/retreat", c.session.Retreat)
			sessions.POST("/:id/finish", c.session.Finish)
			sessions.POST("/:id/restart", c.session.Restart)
			sessions.POST("/:id/retry", c.session.Retry)
		}

		// 历史成绩
		authGroup.GET("/results", c.result.List)

		// 做题进度
		authGroup.GET("/progress/:scopeKey", c.progress.Get)
		authGroup.POST("/progress/:scopeKey/completions", c.progress.RecordCompletion)

		// 游戏化
		authGroup.GET("/gamification", c.gamification.GetUserData)
		authGroup.GET("/gamification/leaderboard", c.gamification.GetLeaderboard)
	}
}
