package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"wedsite/internal/api/middleware"
	"wedsite/internal/auth"
	"wedsite/internal/config"
	"wedsite/internal/pagecache"
	"wedsite/internal/render"
	"wedsite/internal/storage"
)

// Deps 汇总路由所需的外部依赖。
type Deps struct {
	Config  *config.Config
	DB      *gorm.DB
	Queue   Enqueuer
	Auth    *auth.AuthService
	Redis   *redis.Client
	Storage *storage.Client
	Cache   *pagecache.Cache
	Themes  *render.ThemeStyles
	Logger  *slog.Logger
}

// RegisterRoutes 注册 API 与公开页面路由。
func RegisterRoutes(router *gin.Engine, d Deps) {
	cfg := d.Config

	authHandler := NewAuthHandler(d.DB, d.Auth, d.Redis, d.Logger,
		cfg.Auth.LoginRateLimitPerHour, cfg.Auth.LoginLockThreshold, cfg.Auth.LoginLockTTL, cfg.Auth.CookieDomain)
	siteHandler := NewSiteHandler(d.DB, d.Queue, d.Storage, d.Cache, d.Themes, d.Logger)
	assetHandler := NewAssetHandler(d.DB, d.Storage, d.Redis, d.Logger, cfg.Clamd.Addr, cfg.API.MaxUploadBytes, cfg.API.MaxAssets)
	wsHandler := NewWsHandler(d.Redis, d.Auth, d.Logger, cfg.API.AllowedOrigins)

	authMiddleware := middleware.AuthMiddleware(d.Auth)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authHandler.Logout)
			authGroup.GET("/me", authMiddleware, authHandler.Me)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		v1.GET("/themes", siteHandler.ListThemes)

		siteGroup := v1.Group("/site")
		siteGroup.Use(authMiddleware, passwordGate)
		{
			siteGroup.GET("", siteHandler.GetSite)
			siteGroup.PUT("", siteHandler.PutSite)
			siteGroup.GET("/schema", siteHandler.GetSchema)
			siteGroup.GET("/preview", siteHandler.PreviewSite)
			siteGroup.POST("/publish", siteHandler.PublishSite)
		}

		assetGroup := v1.Group("/assets")
		assetGroup.Use(authMiddleware, passwordGate)
		{
			assetGroup.GET("", assetHandler.ListAssets)
			assetGroup.POST("/upload", assetHandler.UploadAsset)
			assetGroup.GET("/view", assetHandler.GetAssetURL)
			assetGroup.DELETE("", assetHandler.DeleteAsset)
		}
	}

	internal := router.Group("/internal")
	internal.Use(middleware.InternalSecretMiddleware(cfg.API.InternalSecret))
	{
		internal.POST("/sites/:id/publish", siteHandler.InternalPublish)
	}

	public := router.Group("/s")
	{
		public.GET("/:slug", siteHandler.PublicPage)
		public.GET("/:slug/assets/:name", siteHandler.PublicAsset)
	}
}
