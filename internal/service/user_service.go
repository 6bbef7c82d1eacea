package service

import (
	"context"
	"errors"
	"fmt"

	"CMS_Blog/internal/metrics"
	"CMS_Blog/internal/model"
	"CMS_Blog/internal/pkg"
	"CMS_Blog/internal/repository/mysql"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByID(ctx context.Context, id uint64) (*model.User, error)
	UpdatePassword(ctx context.Context, user *model.User, hash string) error
}

// TokenStore 以 token 的会话 ID 为键记录有效会话，同一用户的多个会话互不影响
type TokenStore interface {
	AddSession(ctx context.Context, sessionID string, usrId uint64) error
	GetSession(ctx context.Context, sessionID string) (uint64, error)
	ExtendSession(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) error
}

type UserService struct {
	repo    UserStore
	tokens  TokenStore
	issuer  *pkg.TokenIssuer
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	cost    int
	compare func(hash, password []byte) error
	// dummyHash 用户不存在时也做一次同成本的 bcrypt 比较，避免靠耗时区分用户名
	dummyHash []byte
}

type UserOption func(*UserService)

// WithBcryptCost 测试里用 bcrypt.MinCost 加速
func WithBcryptCost(cost int) UserOption {
	return func(s *UserService) { s.cost = cost }
}

func WithUserMetrics(m *metrics.Metrics) UserOption {
	return func(s *UserService) { s.metrics = m }
}

func NewUserService(repo UserStore, tokens TokenStore, issuer *pkg.TokenIssuer, logger *zap.SugaredLogger, opts ...UserOption) (*UserService, error) {
	s := &UserService{
		repo:    repo,
		tokens:  tokens,
		issuer:  issuer,
		logger:  logger,
		cost:    bcrypt.DefaultCost,
		compare: bcrypt.CompareHashAndPassword,
	}
	for _, opt := range opts {
		opt(s)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	if err != nil {
		return nil, err
	}
	s.dummyHash = dummy
	return s, nil
}

func (s *UserService) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.repo.FindByUsername(ctx, username)
}

// VerifyPassword bcrypt 比较本身是常数时间的
func (s *UserService) VerifyPassword(user *model.User, candidate string) bool {
	if user == nil || user.PasswordHash == "" {
		return false
	}
	return s.compare([]byte(user.PasswordHash), []byte(candidate)) == nil
}

// SetPassword 重新加盐哈希并落库，明文不保存
func (s *UserService) SetPassword(ctx context.Context, user *model.User, plaintext string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.cost)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, user, string(hash))
}

// Authenticate 本地账号校验；任何不匹配都返回 ErrInvalidCredentials
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, mysql.ErrNotFound) {
			return nil, err
		}
		_ = s.compare(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if !s.VerifyPassword(user, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login 校验账号并建立会话，返回 access token
func (s *UserService) Login(ctx context.Context, username, password string) (*model.User, string, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.logger.Warnw("invalid login attempt")
			s.metrics.RecordLogin(ctx, "local", "invalid")
		}
		return nil, "", err
	}

	token, err := s.StartSession(ctx, user)
	if err != nil {
		return nil, "", err
	}
	s.logger.Infow("user logged in", "user_id", user.ID, "method", "local")
	s.metrics.RecordLogin(ctx, "local", "ok")
	return user, token, nil
}

// StartSession 签发 token 并按其会话 ID 写入 redis，已有会话不受影响
func (s *UserService) StartSession(ctx context.Context, user *model.User) (string, error) {
	token, err := s.issuer.Generate(user.ID)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	if err := s.tokens.AddSession(ctx, claims.ID, user.ID); err != nil {
		return "", err
	}
	return token, nil
}

// ResolveSession 校验 token 签名、会话是否仍在 redis 中，并续期
func (s *UserService) ResolveSession(ctx context.Context, token string) (uint64, error) {
	if token == "" {
		return 0, ErrSessionInvalid
	}
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return 0, ErrSessionInvalid
	}
	owner, err := s.tokens.GetSession(ctx, claims.ID)
	if err != nil || owner != claims.UserID {
		return 0, ErrSessionInvalid
	}
	if err := s.tokens.ExtendSession(ctx, claims.ID); err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

// Logout 只撤销 token 对应的会话；token 无法识别时视为已登出
func (s *UserService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.issuer.ParseIgnoringExpiry(token)
	if err != nil {
		return nil
	}
	return s.tokens.DeleteSession(ctx, claims.ID)
}

// Provision 创建用户；已存在则重置密码
func (s *UserService) Provision(ctx context.Context, username, password string) (*model.User, error) {
	if username == "" || password == "" {
		return nil, errors.New("username and password required")
	}
	user, err := s.repo.FindByUsername(ctx, username)
	if err == nil {
		return user, s.SetPassword(ctx, user, password)
	}
	if !errors.Is(err, mysql.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}
	user = &model.User{Username: username, PasswordHash: string(hash)}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
