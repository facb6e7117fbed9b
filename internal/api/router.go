package api

import (
	"regexp"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/robcarmo/puppies-api/config"
	"github.com/robcarmo/puppies-api/internal/api/handler"
	"github.com/robcarmo/puppies-api/internal/api/middleware"
)

var handleRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

// NewRouter 装配全部路由与中间件
func NewRouter(cfg *config.Config, h *handler.Handler) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("handle", func(fl validator.FieldLevel) bool {
			return handleRe.MatchString(fl.Field().String())
		})
	}

	r := gin.New()
	r.Use(
		gin.Logger(),
		middleware.Recovery(),
		gzip.Gzip(gzip.DefaultCompression),
		otelgin.Middleware("puppies-api"),
		middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
	)

	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/users", h.Register)
		v1.GET("/users/:user_id", h.GetUser)

		v1.POST("/posts", h.CreatePost)
		v1.GET("/posts", h.ListPosts)
		v1.GET("/posts/:post_id", h.GetPost)
		v1.DELETE("/posts/:post_id", h.DeletePost)

		v1.GET("/feeds/:user_id", h.GetFeed)

		v1.POST("/relations/follow", h.Follow)
		v1.POST("/relations/unfollow", h.Unfollow)
		v1.GET("/relations/:user_id/following", h.ListFollowing)
		v1.GET("/relations/:user_id/fans", h.ListFans)

		v1.POST("/posts/:post_id/like", h.Like)
		v1.DELETE("/posts/:post_id/like", h.Unlike)
		v1.POST("/posts/:post_id/comments", h.CreateComment)
		v1.GET("/posts/:post_id/comments", h.ListComments)
	}
	return r
}
