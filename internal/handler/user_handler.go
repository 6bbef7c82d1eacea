package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"CMS_Blog/internal/middleware"
	"CMS_Blog/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const msgInvalidLogin = "Invalid username or password"

type UserHandler struct {
	users    *service.UserService
	auth     *service.AuthService
	sessions *middleware.SessionManager
	logger   *zap.SugaredLogger
}

// LoginReq 本地登录表单
type LoginReq struct {
	Username string `form:"username" binding:"required,max=64"`
	Password string `form:"password" binding:"required"`
}

func NewUserHandler(users *service.UserService, auth *service.AuthService, sessions *middleware.SessionManager, logger *zap.SugaredLogger) *UserHandler {
	return &UserHandler{
		users:    users,
		auth:     auth,
		sessions: sessions,
		logger:   logger,
	}
}

// LoginPage 已登录直接回首页；否则生成新的 state 和授权地址
func (h *UserHandler) LoginPage(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.users.ResolveSession(ctx, h.sessions.Token(c)); err == nil {
		c.Redirect(http.StatusFound, "/home")
		return
	}

	authURL := ""
	if h.auth.Enabled() {
		state, u, err := h.auth.Begin(ctx)
		if err != nil {
			h.internalError(c, "begin external login", err)
			return
		}
		if err := h.sessions.SetState(c, state); err != nil {
			h.internalError(c, "save session", err)
			return
		}
		authURL = u
	}

	c.JSON(http.StatusOK, gin.H{
		"view":     "login",
		"auth_url": authURL,
		"flashes":  h.sessions.Flashes(c),
	})
}

// Login 本地账号登录
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginReq
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}

	user, token, err := h.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			_ = h.sessions.AddFlash(c, msgInvalidLogin)
			c.Redirect(http.StatusFound, "/login")
			return
		}
		h.internalError(c, "login", err)
		return
	}

	if err := h.sessions.SetAuthenticated(c, user.ID, token); err != nil {
		h.internalError(c, "save session", err)
		return
	}
	next := c.PostForm("next")
	if next == "" {
		next = c.Query("next")
	}
	c.Redirect(http.StatusFound, safeNext(next))
}

// Authorized 身份提供方回调
func (h *UserHandler) Authorized(c *gin.Context) {
	ctx := c.Request.Context()
	cb := service.Callback{
		State:            c.Query("state"),
		Code:             c.Query("code"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	}
	sessionState := h.sessions.State(c)
	// 无论结果如何，本次 state 都作废
	_ = h.sessions.ClearState(c)

	user, err := h.auth.Complete(ctx, sessionState, cb)
	if err != nil {
		var perr *service.ProviderError
		switch {
		case errors.Is(err, service.ErrStateMismatch), errors.Is(err, service.ErrStateExpired):
			c.Redirect(http.StatusFound, "/login")
		case errors.As(err, &perr):
			authError(c, perr.Code, perr.Description)
		case errors.Is(err, service.ErrExchangeFailed):
			authError(c, "exchange_failed", "The authorization code could not be redeemed.")
		case errors.Is(err, service.ErrAccountNotProvisioned):
			authError(c, "account_not_provisioned", "No local account is linked to external logins.")
		case errors.Is(err, service.ErrOAuthDisabled):
			c.JSON(http.StatusNotFound, gin.H{"msg": "external login not configured"})
		default:
			h.internalError(c, "complete external login", err)
		}
		return
	}

	token, err := h.users.StartSession(ctx, user)
	if err != nil {
		h.internalError(c, "start session", err)
		return
	}
	if err := h.sessions.SetAuthenticated(c, user.ID, token); err != nil {
		h.internalError(c, "save session", err)
		return
	}
	c.Redirect(http.StatusFound, "/home")
}

// Logout 撤销当前会话并清空 cookie，同账号的其他会话保持有效
func (h *UserHandler) Logout(c *gin.Context) {
	if err := h.users.Logout(c.Request.Context(), h.sessions.Token(c)); err != nil {
		userID, _ := h.sessions.UserID(c)
		h.logger.Warnw("delete session token failed", "user_id", userID, "error", err)
	}
	if err := h.sessions.Clear(c); err != nil {
		h.logger.Warnw("clear session failed", "error", err)
	}
	c.Redirect(http.StatusFound, "/login")
}

func (h *UserHandler) internalError(c *gin.Context, op string, err error) {
	h.logger.Errorw("request failed", "op", op, "error", err)
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal error"})
}

func authError(c *gin.Context, code, description string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"view":              "auth_error",
		"error":             code,
		"error_description": description,
	})
}

// safeNext 只接受站内相对路径，防止开放重定向
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/home"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/home"
	}
	return next
}
