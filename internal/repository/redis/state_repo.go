package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const StatePrefix = "oauth:state"

// StateRepository 保存 OAuth 回调的 state，一次性消费
type StateRepository struct {
	rdb *redis.Client
}

func NewStateRepository(rdb *redis.Client) *StateRepository {
	return &StateRepository{rdb: rdb}
}

func (r *StateRepository) key(state string) string {
	return fmt.Sprintf("%s:%s", StatePrefix, state)
}

func (r *StateRepository) Save(ctx context.Context, state string, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, r.key(state), "1", ttl).Err(); err != nil {
		return ErrRedisUnavailable
	}
	return nil
}

// Consume 原子地取出并删除；不存在（过期或已用过）返回 false
func (r *StateRepository) Consume(ctx context.Context, state string) (bool, error) {
	err := r.rdb.GetDel(ctx, r.key(state)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, ErrRedisUnavailable
	}
	return true, nil
}
