package middleware

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

const ContextUserIDKey = "user_id"

// SessionResolver 校验会话 token，返回用户 ID
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (uint64, error)
}

// AuthMiddleware 未登录统一跳转 /login，并带上原始地址
func AuthMiddleware(sm *SessionManager, resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sm.Token(c)
		if token == "" {
			redirectToLogin(c)
			return
		}

		userID, err := resolver.ResolveSession(c.Request.Context(), token)
		if err != nil {
			redirectToLogin(c)
			return
		}

		// 注入 user_id
		c.Set(ContextUserIDKey, userID)
		c.Next()
	}
}

func redirectToLogin(c *gin.Context) {
	target := "/login?next=" + url.QueryEscape(c.Request.URL.RequestURI())
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

// CurrentUserID 取出 AuthMiddleware 注入的用户
func CurrentUserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
