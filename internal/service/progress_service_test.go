package service

import (
	"context"
	"errors"
	"learnmate_backend/internal/cache"
	"learnmate_backend/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProgressService(gw *fakeGateway) (*ProgressService, *cache.MemoryProgressCache) {
	c := cache.NewMemoryProgressCache()
	return NewProgressService(gw, c, time.Minute), c
}

func TestReconcileOverwritesCacheWithRemote(t *testing.T) {
	ctx := context.Background()
	remote := model.NewProgressRecord("python:arrays")
	remote.AddSolved(3)
	remote.AddSolved(7)
	remote.AttemptsTotal = 5

	gw := &fakeGateway{remoteProgress: remote}
	svc, c := newTestProgressService(gw)

	// 缓存里有旧的影子副本
	stale := model.NewProgressRecord("python:arrays")
	stale.AddSolved(1)
	require.NoError(t, c.Put(ctx, "u@test", stale))

	record, err := svc.Reconcile(ctx, "u@test", "python:arrays")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{3, 7}, record.SolvedProblemIDs)
	assert.Equal(t, model.SyncSynced, record.SyncState)

	// 缓存被权威数据整体覆盖
	cached, err := c.Get(ctx, "u@test", "python:arrays")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{3, 7}, cached.SolvedProblemIDs)
	assert.False(t, cached.HasSolved(1))
}

func TestReconcileFallsBackToCacheOnRemoteFailure(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{progressErr: errors.New("gateway down")}
	svc, c := newTestProgressService(gw)

	shadow := model.NewProgressRecord("python:arrays")
	shadow.AddSolved(3)
	shadow.AddSolved(7)
	require.NoError(t, c.Put(ctx, "u@test", shadow))

	record, err := svc.Reconcile(ctx, "u@test", "python:arrays")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{3, 7}, record.SolvedProblemIDs)
}

func TestReconcileReturnsZeroRecordWhenNothingAvailable(t *testing.T) {
	gw := &fakeGateway{progressErr: errors.New("gateway down")}
	svc, _ := newTestProgressService(gw)

	record, err := svc.Reconcile(context.Background(), "u@test", "python:arrays")
	require.NoError(t, err)
	assert.Equal(t, "python:arrays", record.ScopeKey)
	assert.Empty(t, record.SolvedProblemIDs)
	assert.Zero(t, record.AttemptsTotal)
}

func TestRecordCompletionIsIdempotentOnSolvedSet(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	svc, _ := newTestProgressService(gw)

	first, err := svc.RecordCompletion(ctx, "u@test", "python:arrays", 42, true)
	require.NoError(t, err)
	assert.Equal(t, 1, first.SolvedCount())
	assert.Equal(t, 1, first.SubmissionsTotal)

	// 重复完成同一题：集合不变，提交数照加
	second, err := svc.RecordCompletion(ctx, "u@test", "python:arrays", 42, true)
	require.NoError(t, err)
	assert.Equal(t, 1, second.SolvedCount())
	assert.Equal(t, 2, second.SubmissionsTotal)

	require.Eventually(t, func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		return len(gw.writes) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestRecordCompletionUnsolvedCountsAttemptOnly(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	svc, _ := newTestProgressService(gw)

	record, err := svc.RecordCompletion(ctx, "u@test", "python:arrays", 42, false)
	require.NoError(t, err)
	assert.Zero(t, record.SolvedCount())
	assert.Equal(t, 1, record.AttemptsTotal)

	// 之后解出来才进已解集合
	record, err = svc.RecordCompletion(ctx, "u@test", "python:arrays", 42, true)
	require.NoError(t, err)
	assert.Equal(t, 1, record.SolvedCount())
	assert.Equal(t, 2, record.AttemptsTotal)
}

func TestWriteThroughFailureMarksDirtyAndRetries(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{writeErr: errors.New("gateway down")}
	svc, c := newTestProgressService(gw)

	record, err := svc.RecordCompletion(ctx, "u@test", "python:arrays", 42, true)
	require.NoError(t, err)
	assert.True(t, record.HasSolved(42))

	// 透写失败后缓存副本转为 dirty
	require.Eventually(t, func() bool {
		cached, err := c.Get(ctx, "u@test", "python:arrays")
		return err == nil && cached != nil && cached.SyncState == model.SyncDirty
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, svc.DirtyCount())

	// 远端恢复后补写成功
	gw.mu.Lock()
	gw.writeErr = nil
	gw.mu.Unlock()
	svc.retryDirty()

	require.Eventually(t, func() bool {
		cached, err := c.Get(ctx, "u@test", "python:arrays")
		return err == nil && cached != nil && cached.SyncState == model.SyncSynced
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, svc.DirtyCount())

	gw.mu.Lock()
	defer gw.mu.Unlock()
	require.Len(t, gw.writes, 1)
	assert.True(t, gw.writes[0].HasSolved(42))
}

func TestWriteThroughSuccessKeepsSynced(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	svc, c := newTestProgressService(gw)

	_, err := svc.RecordCompletion(ctx, "u@test", "python:arrays", 7, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cached, err := c.Get(ctx, "u@test", "python:arrays")
		return err == nil && cached != nil && cached.SyncState == model.SyncSynced
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, svc.DirtyCount())
}
