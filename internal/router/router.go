package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/pacelog/internal/config"
	"github.com/pacelog/internal/db"
	"github.com/pacelog/internal/handler"
	"github.com/pacelog/internal/logger"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(cfg config.AppConfig, log *logger.Logger) *gin.Engine {
	r := gin.Default()

	// 配置会话中间件，外部认证系统写入 user_id/timezone
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	r.Use(sessions.Sessions("pacelog_session", store))

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowOrigins) == 1 && cfg.AllowOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowOrigins
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "X-User-ID", "X-Timezone")
	r.Use(cors.New(corsConfig))

	api := handler.NewAPI(db.DB, log)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	group := r.Group("/api")
	group.Use(handler.ActiveUser(cfg.DefaultTimezone))
	{
		group.GET("/tasks/today", api.TodaysTasks)

		group.GET("/habits/:id/stats", api.HabitStats)
		group.GET("/habits/:id/streak-debug", api.HabitStreakDebug)
		group.GET("/habits/:id/lessons", api.LessonsForHabit)
		group.POST("/habits/:id/response", api.RecordHabitResponse)

		group.POST("/lessons/:slug/opened", api.RecordLessonOpened)
		group.POST("/lessons/:slug/completed", api.MarkLessonCompleted)

		group.POST("/journal/response", api.RecordJournalResponse)

		group.GET("/enrollments", api.ListEnrollments)
		group.POST("/enrollments", api.EnrollUserInProgram)
		group.POST("/enrollments/:id/lessons", api.AttachLessonsToProgramEnrollment)
		group.POST("/enrollments/:id/defer", api.DeferPractice)
		group.POST("/enrollments/:id/cancel", api.CancelEnrollment)

		catalog := group.Group("/catalog")
		{
			catalog.GET("/habits", api.ListHabitTemplates)
			catalog.POST("/habits", api.CreateHabitTemplate)
			catalog.POST("/lessons", api.CreateLessonTemplate)
			catalog.GET("/programs", api.ListPrograms)
			catalog.GET("/programs/:id", api.GetProgram)
			catalog.POST("/programs", api.CreateProgramTemplate)
		}

		settings := group.Group("/settings")
		{
			settings.GET("", api.GetEngineSettings)
			settings.PUT("", api.UpdateEngineSettings)
		}
	}

	return r
}
