package router

import (
	"net/http"

	"CMS_Blog/internal/handler"
	"CMS_Blog/internal/metrics"
	"CMS_Blog/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Deps struct {
	User     *handler.UserHandler
	Post     *handler.PostHandler
	Sessions *middleware.SessionManager
	Resolver middleware.SessionResolver
	Logger   *zap.SugaredLogger
	Metrics  *metrics.Metrics

	// MetricsHandler 为 nil 时不挂 /metrics
	MetricsHandler http.Handler

	// RedirectPath 身份提供方回调路径，需与应用注册一致
	RedirectPath string
}

func InitRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(d.Logger, d.Metrics))

	redirectPath := d.RedirectPath
	if redirectPath == "" {
		redirectPath = "/getAToken"
	}

	// 登录相关接口
	r.GET("/login", d.User.LoginPage)
	r.POST("/login", d.User.Login)
	r.GET(redirectPath, d.User.Authorized)
	r.GET("/logout", d.User.Logout)

	if d.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(d.MetricsHandler))
	}

	// 登录态接口
	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthMiddleware(d.Sessions, d.Resolver))
	{
		authGroup.GET("/", d.Post.Home)
		authGroup.GET("/home", d.Post.Home)
		authGroup.GET("/new_post", d.Post.NewPostPage)
		authGroup.POST("/new_post", d.Post.CreatePost)
		authGroup.GET("/post/:id", d.Post.EditPostPage)
		authGroup.POST("/post/:id", d.Post.UpdatePost)
	}

	return r
}
