package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/diagnostic-gateway/internal/config"
	"github.com/stemsi/diagnostic-gateway/internal/handler"
	"github.com/stemsi/diagnostic-gateway/internal/logger"
	"github.com/stemsi/diagnostic-gateway/internal/middleware"
	"github.com/stemsi/diagnostic-gateway/internal/model"
	"github.com/stemsi/diagnostic-gateway/internal/response"
	"github.com/stemsi/diagnostic-gateway/internal/service"
)

// schemaMaxAge is how long browsers may cache the survey schema.
const schemaMaxAge = 300

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Survey       *handler.SurveyHandler
	Engagement   *handler.EngagementHandler
	Notification *handler.NotificationHandler
	System       *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(logger.RequestLogger(log))

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", handlers.System.Health)

	// Rate limiter for routes that reach the backend on write.
	writeLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)

	// ─── 1. API Group (JWT) ────────────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireJWT(authService))
	{
		api.GET("/survey/schema",
			middleware.CacheControl(schemaMaxAge),
			handlers.Survey.GetSchema,
		)

		api.GET("/engagements/:engagement_id/summary", handlers.Engagement.GetSummary)
		api.GET("/diagnostic-jobs", middleware.NoStore(), handlers.Engagement.ListPendingJobs)
		api.GET("/diagnostics/:id/report",
			middleware.RequireReportAccess(),
			handlers.Engagement.DownloadReport,
		)

		api.GET("/system/metrics",
			middleware.RequireRole(model.RoleFirmAdmin, model.RoleSuperUser),
			handlers.System.SystemMetricsSSE,
		)
	}

	// ─── 2. Survey Group (JWT + Survey Access + Session) ───────────────
	surveyAPI := api.Group("/engagements/:engagement_id/survey")
	surveyAPI.Use(
		middleware.RequireSurveyAccess(),
		middleware.SurveySession(),
		middleware.NoStore(),
	)
	{
		surveyAPI.GET("", handlers.Survey.GetSurvey)
		surveyAPI.PUT("/answers", handlers.Survey.RecordAnswer)
		surveyAPI.POST("/save", writeLimiter.Middleware(), handlers.Survey.SavePage)
		surveyAPI.POST("/next", writeLimiter.Middleware(), handlers.Survey.NextPage)
		surveyAPI.POST("/previous", handlers.Survey.PreviousPage)
		surveyAPI.POST("/submit", writeLimiter.Middleware(), handlers.Survey.Submit)
	}

	// ─── 3. WebSocket Group (WS Auth) ──────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/notifications", handlers.Notification.NotificationStream)
	}

	return router
}
