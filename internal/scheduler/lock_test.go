// internal/scheduler/lock_test.go

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"commerce-mailer/internal/config"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRunLockMutualExclusion(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	first := NewRunLock(client, time.Minute)
	second := NewRunLock(client, time.Minute)

	ok, err := first.Acquire(ctx, "queue_drain")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx, "queue_drain")
	require.NoError(t, err)
	assert.False(t, ok)

	// 不同任務互不影響
	ok, err = second.Acquire(ctx, "abandonment_detect")
	require.NoError(t, err)
	assert.True(t, ok)

	first.Release(ctx, "queue_drain")
	ok, err = second.Acquire(ctx, "queue_drain")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunLockReleaseOnlyDeletesOwnLock(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	holder := NewRunLock(client, time.Minute)
	other := NewRunLock(client, time.Minute)

	ok, err := holder.Acquire(ctx, "schedule_sweep")
	require.NoError(t, err)
	require.True(t, ok)

	// 非持有者釋放不得清掉別人的鎖
	other.Release(ctx, "schedule_sweep")
	assert.True(t, mr.Exists("scheduler:lock:schedule_sweep"))

	holder.Release(ctx, "schedule_sweep")
	assert.False(t, mr.Exists("scheduler:lock:schedule_sweep"))
}

func TestRunLockedReleasesAfterTickDeadline(t *testing.T) {
	mr, client := newTestRedis(t)

	cfg := &config.Config{SchedulerLockTTL: 50 * time.Millisecond}
	lock := NewRunLock(client, cfg.SchedulerLockTTL)
	driver := NewDriver(lock, nil, nil, cfg, zap.NewNop())

	// 任務跑滿 tick context 的期限
	driver.runLocked("queue_drain", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, nil
	})

	// tick context 已逾時，鎖仍需立即釋放而非等 TTL 過期
	assert.False(t, mr.Exists("scheduler:lock:queue_drain"))
}

func TestRunLockedSkipsWhenHeldElsewhere(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	cfg := &config.Config{SchedulerLockTTL: time.Minute}
	foreign := NewRunLock(client, time.Minute)
	ok, err := foreign.Acquire(ctx, "queue_drain")
	require.NoError(t, err)
	require.True(t, ok)

	lock := NewRunLock(client, cfg.SchedulerLockTTL)
	driver := NewDriver(lock, nil, nil, cfg, zap.NewNop())

	ran := false
	driver.runLocked("queue_drain", func(ctx context.Context) (int, error) {
		ran = true
		return 0, nil
	})

	assert.False(t, ran)
	// 別人的鎖保持原樣
	assert.True(t, mr.Exists("scheduler:lock:queue_drain"))
	val, err := mr.Get("scheduler:lock:queue_drain")
	require.NoError(t, err)
	assert.Equal(t, foreign.holder, val)
}
