package middleware

import (
	"crypto/sha256"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

const (
	SessionName = "cms-session"

	sessionStateKey  = "state"
	sessionTokenKey  = "token"
	sessionUserIDKey = "user_id"
)

// SessionManager 基于 gorilla/sessions 的 cookie 会话：保存 OAuth state、会话 token 和 flash 消息
type SessionManager struct {
	store sessions.Store
}

// NewSessionManager secret 为空时使用进程内随机密钥，重启后旧 cookie 全部失效
func NewSessionManager(secret string, secure bool) *SessionManager {
	hashKey := []byte(secret)
	if secret == "" {
		hashKey = securecookie.GenerateRandomKey(64)
	}
	blockKey := sha256.Sum256(hashKey)

	store := sessions.NewCookieStore(hashKey, blockKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   secure,
		// Lax 保证身份提供方跳转回来时 cookie 仍会带上
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{store: store}
}

// NewSessionManagerWithStore 测试或自定义后端使用
func NewSessionManagerWithStore(store sessions.Store) *SessionManager {
	return &SessionManager{store: store}
}

// session 解码失败时返回一个新会话
func (m *SessionManager) session(c *gin.Context) *sessions.Session {
	s, _ := m.store.Get(c.Request, SessionName)
	return s
}

func (m *SessionManager) save(c *gin.Context, s *sessions.Session) error {
	return s.Save(c.Request, c.Writer)
}

func (m *SessionManager) State(c *gin.Context) string {
	v, _ := m.session(c).Values[sessionStateKey].(string)
	return v
}

func (m *SessionManager) SetState(c *gin.Context, state string) error {
	s := m.session(c)
	s.Values[sessionStateKey] = state
	return m.save(c, s)
}

func (m *SessionManager) ClearState(c *gin.Context) error {
	s := m.session(c)
	delete(s.Values, sessionStateKey)
	return m.save(c, s)
}

func (m *SessionManager) Token(c *gin.Context) string {
	v, _ := m.session(c).Values[sessionTokenKey].(string)
	return v
}

// UserID 会话里记录的用户，仅用于登出时清理 redis
func (m *SessionManager) UserID(c *gin.Context) (uint64, bool) {
	v, ok := m.session(c).Values[sessionUserIDKey].(uint64)
	return v, ok
}

// SetAuthenticated 登录成功：写入 token，state 作废
func (m *SessionManager) SetAuthenticated(c *gin.Context, userID uint64, token string) error {
	s := m.session(c)
	s.Values[sessionTokenKey] = token
	s.Values[sessionUserIDKey] = userID
	delete(s.Values, sessionStateKey)
	return m.save(c, s)
}

func (m *SessionManager) AddFlash(c *gin.Context, msg string) error {
	s := m.session(c)
	s.AddFlash(msg)
	return m.save(c, s)
}

// Flashes 读取并清空 flash 消息
func (m *SessionManager) Flashes(c *gin.Context) []string {
	s := m.session(c)
	raw := s.Flashes()
	if len(raw) == 0 {
		return []string{}
	}
	_ = m.save(c, s)
	out := make([]string, 0, len(raw))
	for _, f := range raw {
		if msg, ok := f.(string); ok {
			out = append(out, msg)
		}
	}
	return out
}

// Clear 清空全部会话数据并让 cookie 立即过期
func (m *SessionManager) Clear(c *gin.Context) error {
	s := m.session(c)
	for k := range s.Values {
		delete(s.Values, k)
	}
	s.Options.MaxAge = -1
	return m.save(c, s)
}
