package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"CMS_Blog/internal/metrics"
	"CMS_Blog/internal/model"
	"CMS_Blog/internal/repository/mysql"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const DefaultStateTTL = 10 * time.Minute

// CodeExchanger 授权码流程的客户端，*oauth2.Config 即满足
type CodeExchanger interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// StateStore state 一次性存储
type StateStore interface {
	Save(ctx context.Context, state string, ttl time.Duration) error
	Consume(ctx context.Context, state string) (bool, error)
}

// Callback 身份提供方重定向回来的查询参数
type Callback struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
}

type AuthConfig struct {
	// ExternalAccount 外部登录成功后映射到的本地账号
	ExternalAccount string
	StateTTL        time.Duration
}

type AuthService struct {
	oauth   CodeExchanger
	states  StateStore
	users   UserStore
	cfg     AuthConfig
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

// NewOAuthConfig 由 authority 推出 v2.0 授权/令牌端点，redirectURL 必须与应用注册完全一致
func NewOAuthConfig(clientID, clientSecret, authority, redirectURL string, scopes []string) *oauth2.Config {
	authority = strings.TrimRight(authority, "/")
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authority + "/oauth2/v2.0/authorize",
			TokenURL:  authority + "/oauth2/v2.0/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURL,
		Scopes:      scopes,
	}
}

// NewAuthService oauth 为 nil 表示只开放本地登录
func NewAuthService(oauth CodeExchanger, states StateStore, users UserStore, cfg AuthConfig, logger *zap.SugaredLogger, m *metrics.Metrics) *AuthService {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = DefaultStateTTL
	}
	return &AuthService{
		oauth:   oauth,
		states:  states,
		users:   users,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

func (s *AuthService) Enabled() bool {
	return s.oauth != nil
}

// Begin 生成新的 state 并返回携带它的授权地址
func (s *AuthService) Begin(ctx context.Context) (string, string, error) {
	if s.oauth == nil {
		return "", "", ErrOAuthDisabled
	}
	state := uuid.NewString()
	if err := s.states.Save(ctx, state, s.cfg.StateTTL); err != nil {
		return "", "", fmt.Errorf("save state: %w", err)
	}
	return state, s.oauth.AuthCodeURL(state), nil
}

// Complete 处理回调。state 校验永远最先做，不匹配时不看 code/error。
func (s *AuthService) Complete(ctx context.Context, sessionState string, cb Callback) (*model.User, error) {
	if s.oauth == nil {
		return nil, ErrOAuthDisabled
	}
	if sessionState == "" || cb.State != sessionState {
		s.logger.Warnw("oauth callback state mismatch")
		s.metrics.RecordLogin(ctx, "oauth", "state_mismatch")
		return nil, ErrStateMismatch
	}

	// state 只能用一次，过期或重放都拒绝
	ok, err := s.states.Consume(ctx, cb.State)
	if err != nil {
		return nil, fmt.Errorf("consume state: %w", err)
	}
	if !ok {
		s.logger.Warnw("oauth callback state expired or replayed")
		s.metrics.RecordLogin(ctx, "oauth", "state_expired")
		return nil, ErrStateExpired
	}

	if cb.Error != "" {
		s.logger.Warnw("identity provider returned error", "error", cb.Error)
		s.metrics.RecordLogin(ctx, "oauth", "provider_error")
		return nil, &ProviderError{Code: cb.Error, Description: cb.ErrorDescription}
	}
	if cb.Code == "" {
		s.metrics.RecordLogin(ctx, "oauth", "missing_code")
		return nil, ErrStateMismatch
	}

	if _, err := s.oauth.Exchange(ctx, cb.Code); err != nil {
		s.logger.Warnw("authorization code exchange failed", "error", err)
		s.metrics.RecordLogin(ctx, "oauth", "exchange_failed")
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	user, err := s.users.FindByUsername(ctx, s.cfg.ExternalAccount)
	if err != nil {
		if errors.Is(err, mysql.ErrNotFound) {
			s.logger.Errorw("external account missing", "username", s.cfg.ExternalAccount)
			return nil, ErrAccountNotProvisioned
		}
		return nil, err
	}

	s.logger.Infow("user logged in", "user_id", user.ID, "method", "oauth")
	s.metrics.RecordLogin(ctx, "oauth", "ok")
	return user, nil
}
