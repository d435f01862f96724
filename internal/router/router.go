package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/handler"
	"github.com/stemsi/exam-portal/internal/i18n"
	"github.com/stemsi/exam-portal/internal/middleware"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	StudentPortal *handler.StudentPortalHandler
	WS            *handler.WSHandler
	Exam          *handler.ExamHandler
	Media         *handler.MediaHandler
	Monitor       *handler.MonitorHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(auth middleware.TokenValidator, handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Accept-Language", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(i18n.Middleware())
	router.Use(middleware.Brotli())

	// Question images are immutable (random names), cache for a year.
	uploadsGroup := router.Group("/uploads")
	uploadsGroup.Use(middleware.CacheControl(31536000))
	{
		uploadsGroup.Static("/", cfg.UploadDir)
	}

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	authLimiter := middleware.NewRateLimiter(30, time.Minute)
	authAPI := router.Group("/api/v1/auth")
	{
		authAPI.POST("/login", authLimiter.Middleware(), handlers.Auth.Login)
		authAPI.GET("/me", middleware.RequireJWT(auth), handlers.Auth.Me)
	}

	// ─── 2. Student Group ──────────────────────────────────────────────
	// Session state changes every second; nothing here may be cached.
	lookupLimiter := middleware.NewRateLimiter(20, time.Minute).ByUser()
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(auth), middleware.NoStore())
	{
		studentAPI.POST("/exams/lookup", lookupLimiter.Middleware(), handlers.StudentPortal.LookupExam)
		studentAPI.GET("/exams/:exam_id/paper", handlers.StudentPortal.GetExamPaper)
		studentAPI.POST("/exams/:exam_id/start", handlers.StudentPortal.StartExam)
		studentAPI.GET("/exams/:exam_id/state", handlers.StudentPortal.GetExamState)
		studentAPI.GET("/exams/:exam_id/leaderboard", handlers.StudentPortal.GetLeaderboard)
		studentAPI.GET("/submissions", handlers.StudentPortal.ListSubmissions)
	}

	// ─── 3. WebSocket Group (token in query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentJWT(auth))
	{
		ws.GET("/student/exams/:exam_id/stream", handlers.WS.ExamWebSocketStream)
	}

	// ─── 4. Teacher Group (teachers and admins) ────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(middleware.RequireTeacherJWT(auth))
	{
		teacherAPI.GET("/exams", handlers.Exam.ListExams)
		teacherAPI.POST("/exams", handlers.Exam.CreateExam)
		teacherAPI.GET("/exams/:id", handlers.Exam.GetExam)
		teacherAPI.PATCH("/exams/:id/active", handlers.Exam.SetExamActive)
		teacherAPI.GET("/exams/:id/monitor", handlers.Monitor.MonitorExamSSE)

		teacherAPI.POST("/media", handlers.Media.UploadImage)

		teacherAPI.GET("/system/metrics",
			middleware.RequireRole(model.RoleAdmin),
			handlers.System.SystemMetricsSSE,
		)
	}

	return router
}
