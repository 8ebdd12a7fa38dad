package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cppla/inkwell/config"
	"github.com/cppla/inkwell/controllers"
	"github.com/cppla/inkwell/middleware"
	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(svc *services.Services, cfg config.AppConfig) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	// ClientIP keys anonymous reactions, rate limits and the register guard
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		utils.Sugar.Warnw("invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}
	// Request log goes to its own rolling file; fall back to the app logger.
	gl := utils.Logger
	if cfg.GinPath != "" {
		if l, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress); err == nil {
			gl = l
		}
	}
	r.Use(utils.Ginzap(gl, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(gl, true))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	if cfg.UploadDir != "" && cfg.UploadURLPrefix != "" {
		uploads := r.Group(cfg.UploadURLPrefix, func(ctx *gin.Context) {
			ctx.Header("X-Content-Type-Options", "nosniff")
			ctx.Header("Content-Security-Policy", "default-src 'none'; sandbox")
			ctx.Next()
		})
		uploads.Static("/", cfg.UploadDir)
	}

	authController := controllers.NewAuthController(svc, cfg)
	articleController := controllers.NewArticleController(svc)
	commentController := controllers.NewCommentController(svc)
	reactionController := controllers.NewReactionController(svc)
	mediaController := controllers.NewMediaController(svc, cfg.UploadMaxMB)
	newsletterController := controllers.NewNewsletterController(svc)
	notificationController := controllers.NewNotificationController(svc)
	userController := controllers.NewUserController(svc)
	taxonomyController := controllers.NewTaxonomyController(svc)
	statsController := controllers.NewStatsController(svc)

	r.GET("/health", statsController.Health)

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))

	authRequired := middleware.AuthRequired(svc.Tokens, utils.AbilityAccessAPI)
	optionalAuth := middleware.OptionalAuth(svc.Tokens)
	can := func(perm string) gin.HandlerFunc { return middleware.RequirePermission(svc.Authz, perm) }

	authGroup := api.Group("/auth")
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/refresh", authController.Refresh)
	authGroup.POST("/forgot-password", authController.ForgotPassword)
	authGroup.POST("/reset-password", authController.ResetPassword)
	authGroup.GET("/captcha", authController.Captcha)
	authGroup.GET("/oauth/:provider/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", authRequired, authController.Logout)
	authGroup.GET("/me", authRequired, authController.Me)
	authGroup.PATCH("/profile", authRequired, authController.UpdateProfile)
	authGroup.POST("/password", authRequired, authController.ChangePassword)

	// Public reads; a token, when present, widens what the caller may see.
	public := api.Group("", optionalAuth)
	public.GET("/articles", articleController.List)
	public.GET("/articles/:article", articleController.Show)
	public.GET("/articles/:article/comments", commentController.ListForArticle)
	public.GET("/comments/:id/replies", commentController.ListReplies)
	public.POST("/articles/:article/like", reactionController.Like)
	public.POST("/articles/:article/dislike", reactionController.Dislike)
	public.GET("/categories", taxonomyController.Categories)
	public.GET("/tags", taxonomyController.Tags)
	public.POST("/newsletter/subscribe", newsletterController.Subscribe)
	public.POST("/newsletter/verify", newsletterController.Verify)
	public.POST("/newsletter/unsubscribe", newsletterController.RequestUnsubscribe)
	public.POST("/newsletter/unsubscribe/verify", newsletterController.ConfirmUnsubscribe)
	public.GET("/users/:id/followers", userController.Followers)
	public.GET("/users/:id/following", userController.Following)

	protected := api.Group("", authRequired)
	protected.GET("/me/articles", articleController.ListMine)
	protected.POST("/articles", articleController.Create)
	protected.PUT("/articles/:article", articleController.Update)
	protected.DELETE("/articles/:article", articleController.Delete)
	protected.POST("/articles/:article/approve", articleController.Approve())
	protected.POST("/articles/:article/reject", articleController.Reject)
	protected.POST("/articles/:article/archive", articleController.Archive())
	protected.POST("/articles/:article/restore", articleController.Restore())
	protected.POST("/articles/:article/trash", articleController.Trash())
	protected.POST("/articles/:article/restore-from-trash", articleController.RestoreFromTrash())
	protected.POST("/articles/:article/feature", articleController.SetFeatured(true))
	protected.POST("/articles/:article/unfeature", articleController.SetFeatured(false))
	protected.POST("/articles/:article/pin", articleController.SetPinned(true))
	protected.POST("/articles/:article/unpin", articleController.SetPinned(false))
	protected.POST("/articles/:article/report", articleController.Report)
	protected.POST("/articles/:article/clear-reports", articleController.ClearReports())

	protected.POST("/articles/:article/comments", commentController.Create)
	protected.PUT("/comments/:id", commentController.Update)
	protected.DELETE("/comments/:id", commentController.Delete)
	protected.POST("/comments/:id/approve", commentController.Moderate(models.CommentApproved))
	protected.POST("/comments/:id/reject", commentController.Moderate(models.CommentRejected))
	protected.POST("/comments/:id/spam", commentController.Moderate(models.CommentSpam))
	protected.POST("/comments/:id/report", commentController.Report())

	protected.GET("/media", mediaController.List)
	protected.POST("/media", mediaController.Upload)
	protected.GET("/media/:id", mediaController.Show)
	protected.PUT("/media/:id", mediaController.Update)
	protected.DELETE("/media/:id", mediaController.Delete)

	protected.POST("/categories", taxonomyController.CreateCategory)
	protected.PUT("/categories/:id", taxonomyController.UpdateCategory)
	protected.DELETE("/categories/:id", taxonomyController.DeleteCategory)
	protected.POST("/tags", taxonomyController.CreateTag)
	protected.PUT("/tags/:id", taxonomyController.UpdateTag)
	protected.DELETE("/tags/:id", taxonomyController.DeleteTag)

	protected.POST("/users/:id/follow", userController.Follow)
	protected.DELETE("/users/:id/follow", userController.Unfollow)

	protected.GET("/notifications", notificationController.Inbox)
	protected.GET("/notifications/unread-count", notificationController.UnreadCount)
	protected.POST("/notifications/read-all", notificationController.MarkAllRead)
	protected.POST("/notifications/:id/read", notificationController.MarkRead)

	admin := protected.Group("/admin")
	admin.GET("/articles", articleController.ListAll)
	admin.GET("/reports", articleController.ListReported)
	admin.GET("/comments", commentController.ListForModeration)
	admin.GET("/users", can(services.PermViewUsers), userController.List)
	admin.POST("/users", userController.Create)
	admin.GET("/users/:id", can(services.PermViewUsers), userController.Show)
	admin.PUT("/users/:id", userController.Update)
	admin.DELETE("/users/:id", userController.Delete)
	admin.POST("/users/:id/ban", userController.Status(svc.Users.Ban))
	admin.POST("/users/:id/unban", userController.Status(svc.Users.Unban))
	admin.POST("/users/:id/block", userController.Status(svc.Users.Block))
	admin.POST("/users/:id/unblock", userController.Status(svc.Users.Unblock))
	admin.PUT("/users/:id/roles", userController.AssignRoles)
	admin.GET("/roles", can(services.PermViewUsers), userController.Roles)
	admin.PUT("/roles/:id/permissions", userController.SetRolePermissions)
	admin.GET("/notifications", notificationController.List)
	admin.POST("/notifications", notificationController.Create)
	admin.DELETE("/notifications/:id", notificationController.Delete)
	admin.GET("/subscribers", newsletterController.List)
	admin.DELETE("/subscribers/:id", newsletterController.Delete)
	admin.GET("/stats", can(services.PermViewUsers), statsController.Dashboard)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, "route not found", nil)
	})
	r.NoMethod(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
