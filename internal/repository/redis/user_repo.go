package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrRedisUnavailable = errors.New("redis unavailable")
	ErrExtendFailed     = errors.New("token extend failed")
	ErrTokenDeleted     = errors.New("token delete failed")
)

const SessionPrefix = "login:session"

// UserRepository 按会话 ID 保存登录态，同一用户可同时有多个会话
type UserRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewUserRepository(rdb *redis.Client, ttl time.Duration) *UserRepository {
	return &UserRepository{rdb: rdb, ttl: ttl}
}

func (r *UserRepository) key(sessionID string) string {
	return fmt.Sprintf("%s:%s", SessionPrefix, sessionID)
}

func (r *UserRepository) AddSession(ctx context.Context, sessionID string, usrId uint64) error {
	if err := r.rdb.Set(ctx, r.key(sessionID), usrId, r.ttl).Err(); err != nil {
		return ErrRedisUnavailable
	}
	return nil
}

// GetSession 返回会话所属用户
func (r *UserRepository) GetSession(ctx context.Context, sessionID string) (uint64, error) {
	raw, err := r.rdb.Get(ctx, r.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrTokenNotFound
	}
	if err != nil {
		return 0, ErrRedisUnavailable
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, ErrTokenNotFound
	}
	return id, nil
}

func (r *UserRepository) ExtendSession(ctx context.Context, sessionID string) error {
	if err := r.rdb.Expire(ctx, r.key(sessionID), r.ttl).Err(); err != nil {
		return ErrExtendFailed
	}
	return nil
}

// DeleteSession 只撤销这一个会话
func (r *UserRepository) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.rdb.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return ErrTokenDeleted
	}
	return nil
}
