package app

import (
	"exam_online_backend/internal/config"
	"exam_online_backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/metrics", a.Metrics.PrometheusHandler())
	router.GET("/health", c.health.HealthCheck)

	// 学生考试会话接口，全部需要认证；用户级别限流挂在认证之后，
	// 以认证后的用户身份作为限流维度
	student := router.Group("/api/student/exams")
	student.Use(middleware.AuthMiddleware(cfg))
	{
		student.POST("/:examId/enter",
			middleware.UserRateLimit(a.services.rateLimit, middleware.OpEnterExam),
			c.studentExam.Enter)
		student.POST("/:examId/answers",
			middleware.UserRateLimit(a.services.rateLimit, middleware.OpSaveAnswer),
			c.studentExam.SaveAnswer)
		student.GET("/:examId/answers", c.studentExam.GetAnswers)
		student.POST("/:examId/submit",
			middleware.UserRateLimit(a.services.rateLimit, middleware.OpSubmitExam),
			c.studentExam.Submit)
	}
}
