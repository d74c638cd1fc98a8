package app

import (
	"exam_platform_backend/docs"
	"exam_platform_backend/internal/config"
	"exam_platform_backend/internal/middleware"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/profile", c.auth.GetProfile)

		// 学生作答生命周期
		authGroup.GET("/exams", c.exam.ListExams)
		authGroup.GET("/exams/:examId", c.exam.GetExam)
		authGroup.POST("/exams/:examId/start", c.exam.StartAttempt)
		authGroup.POST("/exams/:examId/questions/:questionId/answer", c.exam.SubmitAnswer)
		authGroup.POST("/exams/:examId/questions/:questionId/select", c.exam.ToggleSelection)
		authGroup.POST("/exams/:examId/complete", c.exam.CompleteAttempt)
		authGroup.GET("/results", c.exam.ListMyResults)
		authGroup.GET("/results/:resultId", c.exam.GetResult)
		authGroup.POST("/results/:resultId/regrade", c.exam.RequestRegrade)
	}

	// 3. 教师/管理员路由
	adminGroup := router.Group("/api/admin")
	adminGroup.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Teacher, model.Admin))
	{
		adminGroup.GET("/exams", c.adminExam.ListAllExams)
		adminGroup.POST("/exams", c.adminExam.CreateExam)
		adminGroup.POST("/exams/import", c.adminExam.ImportExam)
		adminGroup.GET("/exams/:examId", c.adminExam.GetExamFull)
		adminGroup.PUT("/exams/:examId", c.adminExam.UpdateExam)
		adminGroup.DELETE("/exams/:examId", c.adminExam.DeleteExam)
		adminGroup.PUT("/exams/:examId/lock", c.adminExam.SetLock)
		adminGroup.POST("/exams/:examId/sections", c.adminExam.AddSection)
		adminGroup.POST("/exams/:examId/questions", c.adminExam.AddQuestion)
		adminGroup.GET("/exams/:examId/results", c.adminExam.ListExamResults)
		adminGroup.PUT("/questions/:questionId", c.adminExam.UpdateQuestion)
		adminGroup.DELETE("/questions/:questionId", c.adminExam.DeleteQuestion)
		adminGroup.POST("/results/:resultId/regrade", c.adminExam.ForceRegrade)
	}
}
