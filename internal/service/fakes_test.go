package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"CMS_Blog/internal/model"
	"CMS_Blog/internal/repository/mysql"
	redisrepo "CMS_Blog/internal/repository/redis"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := mysql.InitDB("sqlite", ":memory:", nil)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, mysql.Migrate(db))
	return db
}

// memTokens 内存版 TokenStore
type memTokens struct {
	mu     sync.Mutex
	tokens map[string]uint64
}

func newMemTokens() *memTokens {
	return &memTokens{tokens: make(map[string]uint64)}
}

func (m *memTokens) AddSession(_ context.Context, sid string, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[sid] = id
	return nil
}

func (m *memTokens) GetSession(_ context.Context, sid string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.tokens[sid]
	if !ok {
		return 0, redisrepo.ErrTokenNotFound
	}
	return id, nil
}

func (m *memTokens) ExtendSession(context.Context, string) error { return nil }

func (m *memTokens) DeleteSession(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, sid)
	return nil
}

func (m *memTokens) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

// memStates 内存版 StateStore
type memStates struct {
	mu     sync.Mutex
	states map[string]time.Duration
}

func newMemStates() *memStates {
	return &memStates{states: make(map[string]time.Duration)}
}

func (m *memStates) Save(_ context.Context, state string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state] = ttl
	return nil
}

func (m *memStates) Consume(_ context.Context, state string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.states[state]
	delete(m.states, state)
	return ok, nil
}

// mockGateway 记录上传/删除调用
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Upload(ctx context.Context, name string, r io.Reader, contentType string) (string, error) {
	_, _ = io.ReadAll(r)
	args := m.Called(ctx, name, contentType)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) Delete(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *mockGateway) URL(name string) string {
	return "https://acct.blob.core.windows.net/images/" + name
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Send(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func seedUser(t *testing.T, repo UserStore, username, hash string) *model.User {
	t.Helper()
	u := &model.User{Username: username, PasswordHash: hash}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}
