package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "1.0.0"

// NewServer builds the gin engine with every route registered. When
// accessKey is empty the /api group is served without authentication.
func NewServer(handler *Handler, accessKey string, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())
	r.Use(prometheusMiddleware())

	setupRoutes(r, handler, accessKey, logger)

	return r
}

func setupRoutes(r *gin.Engine, h *Handler, accessKey string, logger *slog.Logger) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     "forager",
			"version":     version,
			"description": "RSS ingest service",
			"endpoints": gin.H{
				"health":     "/health",
				"metrics":    "/metrics",
				"categories": "/api/categories",
				"tags":       "/api/tags",
				"feeds":      "/api/feeds",
				"articles":   "/api/articles",
			},
			"auth_required": accessKey != "",
		})
	})
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	if accessKey != "" {
		api.Use(authMiddleware(accessKey))
		logger.Info("api authentication enabled")
	} else {
		logger.Warn("api authentication disabled, api.access_key not set")
	}

	categories := api.Group("/categories")
	{
		categories.GET("", h.ListCategories)
		categories.POST("", h.CreateCategory)
		categories.GET("/:id", h.GetCategory)
		categories.PUT("/:id", h.UpdateCategory)
		categories.DELETE("/:id", h.DeleteCategory)
	}

	tags := api.Group("/tags")
	{
		tags.GET("", h.ListTags)
		tags.POST("", h.CreateTag)
		tags.GET("/:id", h.GetTag)
		tags.PUT("/:id", h.UpdateTag)
		tags.DELETE("/:id", h.DeleteTag)
	}

	feeds := api.Group("/feeds")
	{
		feeds.GET("", h.ListFeeds)
		feeds.POST("", h.CreateFeed)
		feeds.GET("/:id", h.GetFeed)
		feeds.PUT("/:id", h.UpdateFeed)
		feeds.DELETE("/:id", h.DeleteFeed)
		feeds.PUT("/:id/tags", h.SetFeedTags)
		feeds.POST("/:id/tags/:tag_id", h.AddFeedTag)
		feeds.DELETE("/:id/tags/:tag_id", h.RemoveFeedTag)
		feeds.GET("/:id/articles", h.ListFeedArticles)
		feeds.POST("/:id/fetch", h.FetchFeed)
	}

	articles := api.Group("/articles")
	{
		articles.GET("", h.ListArticles)
		articles.DELETE("", h.DeleteArticles)
		articles.GET("/:id", h.GetArticle)
		articles.PUT("/:id", h.UpdateArticle)
		articles.DELETE("/:id", h.DeleteArticle)
		articles.POST("/:id/tags/:tag_id", h.AddArticleTag)
		articles.DELETE("/:id/tags/:tag_id", h.RemoveArticleTag)
		articles.POST("/:id/enrich", h.EnrichArticle)
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	logger = logger.With("component", "api")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// authMiddleware accepts the key in X-API-Key or as an Authorization bearer token.
func authMiddleware(accessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "api key required"})
			return
		}
		if key != accessKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}

		c.Next()
	}
}
