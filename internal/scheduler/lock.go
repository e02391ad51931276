// internal/scheduler/lock.go
// Redis 排程鎖 - 多實例部署時確保同名任務單一執行

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RunLock Redis SETNX 排程鎖
// 持有者 token 確保只有取得鎖的實例能釋放
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
	holder string
}

// NewRunLock 建立排程鎖
func NewRunLock(client *redis.Client, ttl time.Duration) *RunLock {
	return &RunLock{
		client: client,
		ttl:    ttl,
		holder: uuid.NewString(),
	}
}

// Acquire 嘗試取得指定任務的鎖
// 回傳 false 表示其他實例正在執行
func (l *RunLock) Acquire(ctx context.Context, job string) (bool, error) {
	key := fmt.Sprintf("scheduler:lock:%s", job)
	ok, err := l.client.SetNX(ctx, key, l.holder, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire scheduler lock: %w", err)
	}
	return ok, nil
}

// Release 釋放鎖
// 僅在仍由自己持有時刪除，避免清掉其他實例在 TTL 過後重新取得的鎖
func (l *RunLock) Release(ctx context.Context, job string) {
	key := fmt.Sprintf("scheduler:lock:%s", job)
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`
	_ = l.client.Eval(ctx, script, []string{key}, l.holder).Err()
}
