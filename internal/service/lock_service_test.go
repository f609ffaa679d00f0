package service

import (
	"context"
	"testing"
	"time"

	"exam_online_backend/internal/config"
	"exam_online_backend/internal/util"
	"exam_online_backend/pkg/monitoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLockService(store Store) *LockService {
	return NewLockService(store, config.LockConfig{
		EnterLeaseSeconds:  30,
		SubmitLeaseSeconds: 10,
	}, monitoring.NewMetrics())
}

func TestLock_AcquireAndContention(t *testing.T) {
	store := newMemStore()
	svc := newLockService(store)
	ctx := context.Background()

	handle, acquired := svc.TryLockEnter(ctx, 1, 2)
	require.True(t, acquired)
	require.NotNil(t, handle)
	assert.Equal(t, util.EnterLockKey(1, 2), handle.Key)

	_, acquired = svc.TryLockEnter(ctx, 1, 2)
	assert.False(t, acquired, "second acquire on the same key must fail")

	// 不同的 (examId, studentId) 互不影响
	_, acquired = svc.TryLockEnter(ctx, 1, 3)
	assert.True(t, acquired)
}

func TestLock_ReleaseAllowsReacquire(t *testing.T) {
	store := newMemStore()
	svc := newLockService(store)
	ctx := context.Background()

	handle, acquired := svc.TryLockSubmit(ctx, 1, 2)
	require.True(t, acquired)

	svc.Unlock(ctx, handle)

	_, acquired = svc.TryLockSubmit(ctx, 1, 2)
	assert.True(t, acquired, "lock must be reacquirable after release")
}

func TestLock_ForeignReleaseIsNoop(t *testing.T) {
	store := newMemStore()
	svc := newLockService(store)
	ctx := context.Background()

	first, acquired := svc.TryLockEnter(ctx, 1, 2)
	require.True(t, acquired)

	// 模拟租约过期后被他人持有
	require.NoError(t, store.Del(ctx, first.Key))
	second, acquired := svc.TryLockEnter(ctx, 1, 2)
	require.True(t, acquired)

	// 过期handle的释放不得打掉现任持有者的锁
	svc.Unlock(ctx, first)
	_, exists, err := store.Get(ctx, second.Key)
	require.NoError(t, err)
	assert.True(t, exists, "current holder's lock must survive a stale release")
}

func TestLock_NilHandleReleaseIsNoop(t *testing.T) {
	store := newMemStore()
	svc := newLockService(store)

	svc.Unlock(context.Background(), nil)
}

func TestLock_StoreErrorFailsClosed(t *testing.T) {
	store := newMemStore()
	store.setFail(true)
	svc := newLockService(store)

	_, acquired := svc.TryLockEnter(context.Background(), 1, 2)
	assert.False(t, acquired, "store outage must be treated as contention")
}

func TestLock_Statistics(t *testing.T) {
	store := newMemStore()
	svc := newLockService(store)
	ctx := context.Background()

	handle, acquired := svc.TryLockEnter(ctx, 1, 2)
	require.True(t, acquired)
	_, acquired = svc.TryLockEnter(ctx, 1, 2)
	require.False(t, acquired)

	time.Sleep(10 * time.Millisecond)
	svc.Unlock(ctx, handle)

	stats := svc.Statistics()
	assert.Equal(t, int64(1), stats.Enter.Success)
	assert.Equal(t, int64(1), stats.Enter.Failure)
	assert.Equal(t, 50.0, stats.Enter.FailureRate())
	assert.GreaterOrEqual(t, stats.Enter.AvgHoldTimeMs, int64(10))

	assert.Equal(t, int64(0), stats.Submit.Success)
	assert.Equal(t, 0.0, stats.Submit.FailureRate())
}
