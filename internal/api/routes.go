package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"jobsdb/internal/api/middleware"
	"jobsdb/internal/applications"
	"jobsdb/internal/auth"
	"jobsdb/internal/config"
	"jobsdb/internal/identity"
	"jobsdb/internal/jobs"
	"jobsdb/internal/resume"
	"jobsdb/internal/storage"
	"jobsdb/internal/tasks"
	"jobsdb/internal/taxonomy"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	asynqClient *asynq.Client,
	authService *auth.AuthService,
	redisClient *redis.Client,
	logger *slog.Logger,
	storageClient *storage.Client,
) {
	identityService := identity.NewService(db)
	resumeService := resume.NewService(db)
	jobsService := jobs.NewService(db)
	applicationService := applications.NewService(db, tasks.NewAsynqNotifier(asynqClient), logger)
	taxonomyService := taxonomy.NewService(db)

	authHandler := NewAuthHandler(
		identityService,
		authService,
		redisClient,
		logger,
		cfg.Auth.LoginRateLimitPerHour,
		cfg.Auth.LoginLockThreshold,
		cfg.Auth.LoginLockTTL,
		cfg.Auth.CookieDomain,
	)
	resumeHandler := NewResumeHandler(resumeService, storageClient, logger, cfg.Uploads.ClamdAddr, cfg.Uploads.MaxBytes)
	jobHandler := NewJobHandler(jobsService, logger)
	applicationHandler := NewApplicationHandler(applicationService, logger)
	taxonomyHandler := NewTaxonomyHandler(taxonomyService, logger)
	adminHandler := NewAdminHandler(identityService, jobsService, applicationService, logger)
	notifyStream := NewNotifyStreamHandler(redisClient, authService, logger, cfg.API.AllowedOrigins)

	authMiddleware := middleware.AuthMiddleware(authService)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()
	adminOnly := middleware.RequireAdminMiddleware()

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", notifyStream.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
			authGroup.GET("/me", authMiddleware, passwordGate, authHandler.Me)
		}

		jobsGroup := v1.Group("/jobs")
		{
			jobsGroup.GET("", jobHandler.Latest)
			jobsGroup.GET("/search", jobHandler.Search)
			jobsGroup.GET("/:id", jobHandler.Get)
			jobsGroup.GET("/:id/similar", jobHandler.Similar)
		}

		resumeGroup := v1.Group("/resume")
		resumeGroup.Use(authMiddleware, passwordGate)
		{
			resumeGroup.GET("", resumeHandler.GetResume)
			resumeGroup.PUT("", resumeHandler.PutResume)
			resumeGroup.POST("/attachment", resumeHandler.UploadAttachment)
			resumeGroup.GET("/attachment", resumeHandler.GetAttachmentLink)
		}

		applicationGroup := v1.Group("/applications")
		applicationGroup.Use(authMiddleware, passwordGate)
		{
			applicationGroup.POST("", applicationHandler.Apply)
			applicationGroup.GET("", applicationHandler.ListMine)
			applicationGroup.GET("/:id", applicationHandler.Get)
		}

		referenceGroup := v1.Group("/reference/:kind")
		referenceGroup.Use(authMiddleware, passwordGate)
		{
			referenceGroup.GET("", taxonomyHandler.List)
		}

		adminGroup := v1.Group("/admin")
		adminGroup.Use(authMiddleware, passwordGate, adminOnly)
		{
			adminGroup.GET("/stats", adminHandler.Stats)
			adminGroup.PUT("/users/:id/role", adminHandler.SetUserRole)
			adminGroup.DELETE("/users/:id", adminHandler.DeleteUser)

			adminGroup.POST("/jobs", jobHandler.Create)
			adminGroup.PUT("/jobs/:id", jobHandler.Update)
			adminGroup.DELETE("/jobs/:id", jobHandler.Delete)
			adminGroup.PUT("/jobs/:id/skills", jobHandler.ReplaceSkills)
			adminGroup.PUT("/jobs/:id/languages", jobHandler.ReplaceLanguages)
			adminGroup.PUT("/jobs/:id/tags", jobHandler.ReplaceTags)

			adminGroup.GET("/applications", applicationHandler.ListAll)
			adminGroup.PUT("/applications/:id/status", applicationHandler.SetStatus)

			adminGroup.POST("/reference/:kind", taxonomyHandler.Create)
			adminGroup.PUT("/reference/:kind/:id", taxonomyHandler.Update)
			adminGroup.DELETE("/reference/:kind/:id", taxonomyHandler.Delete)

			adminGroup.PUT("/templates", taxonomyHandler.UpsertTemplate)
			adminGroup.GET("/templates", taxonomyHandler.ListTemplates)
			adminGroup.DELETE("/templates/:name", taxonomyHandler.DeleteTemplate)
		}
	}
}
