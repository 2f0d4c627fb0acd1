package service

import (
	"context"
	"learnmate_backend/internal/cache"
	"learnmate_backend/internal/gateway"
	"learnmate_backend/internal/model"
	"learnmate_backend/pkg/logger"
	"learnmate_backend/pkg/monitoring"
	"sync"
	"time"

	"go.uber.org/zap"
)

// dirtyKey 等待补写远端的 用户+范围 组合
type dirtyKey struct {
	UserKey  string
	ScopeKey string
}

// ProgressService 进度对账。权威副本在远端网关，本地缓存作影子副本：
// 读取时远端优先、失败回退缓存；写入时先落缓存再异步透写远端，
// 透写失败进入 dirty 状态由后台定时补写。
type ProgressService struct {
	Gateway gateway.Gateway
	Cache   cache.ProgressCache

	retryInterval time.Duration

	mu    sync.Mutex
	dirty map[dirtyKey]bool

	stop chan struct{}
}

func NewProgressService(gw gateway.Gateway, c cache.ProgressCache, retryInterval time.Duration) *ProgressService {
	return &ProgressService{
		Gateway:       gw,
		Cache:         c,
		retryInterval: retryInterval,
		dirty:         make(map[dirtyKey]bool),
		stop:          make(chan struct{}),
	}
}

// Reconcile 拉取远端权威进度并整体覆盖本地缓存。
// 远端不可达时回退缓存副本，缓存也没有则返回零值记录。
func (s *ProgressService) Reconcile(ctx context.Context, userKey, scopeKey string) (*model.ProgressRecord, error) {
	remote, err := s.Gateway.FetchProgress(ctx, userKey, scopeKey)
	if err == nil && remote != nil {
		remote.SyncState = model.SyncSynced
		remote.LastSyncedAt = time.Now()
		if cacheErr := s.Cache.Put(ctx, userKey, remote); cacheErr != nil {
			logger.Log.Warn("progress cache write failed",
				zap.String("scopeKey", scopeKey),
				zap.Error(cacheErr))
		}
		return remote, nil
	}

	logger.Log.Warn("remote progress fetch failed, falling back to cache",
		zap.String("scopeKey", scopeKey),
		zap.Error(err))

	cached, cacheErr := s.Cache.Get(ctx, userKey, scopeKey)
	if cacheErr == nil && cached != nil {
		return cached, nil
	}
	return model.NewProgressRecord(scopeKey), nil
}

// RecordCompletion 乐观记录一次提交：先幂等更新缓存副本，
// 再异步透写远端；透写失败不回滚本地，转入 dirty 等待补写。
// solved 为 false 时只累计尝试次数，不进已解集合。
func (s *ProgressService) RecordCompletion(ctx context.Context, userKey, scopeKey string, problemID int, solved bool) (*model.ProgressRecord, error) {
	record, err := s.Cache.Get(ctx, userKey, scopeKey)
	if err != nil || record == nil {
		record = model.NewProgressRecord(scopeKey)
	}

	if solved {
		record.AddSolved(problemID)
	}
	record.AttemptsTotal++
	record.SubmissionsTotal++
	record.SyncState = model.SyncSyncing

	if err := s.Cache.Put(ctx, userKey, record); err != nil {
		return nil, err
	}

	go s.writeThrough(userKey, record.Clone())
	return record, nil
}

// writeThrough 向远端透写并按结果更新缓存中的同步状态
func (s *ProgressService) writeThrough(userKey string, record *model.ProgressRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.Gateway.WriteProgress(ctx, userKey, record)
	if err != nil {
		monitoring.ProgressSyncFailures.Inc()
		logger.Log.Warn("progress write-through failed, marking dirty",
			zap.String("scopeKey", record.ScopeKey),
			zap.Error(err))

		record.SyncState = model.SyncDirty
		if cacheErr := s.Cache.Put(ctx, userKey, record); cacheErr != nil {
			logger.Log.Error("progress cache update failed", zap.Error(cacheErr))
		}

		s.mu.Lock()
		s.dirty[dirtyKey{UserKey: userKey, ScopeKey: record.ScopeKey}] = true
		s.mu.Unlock()
		return
	}

	record.SyncState = model.SyncSynced
	record.LastSyncedAt = time.Now()
	if cacheErr := s.Cache.Put(ctx, userKey, record); cacheErr != nil {
		logger.Log.Error("progress cache update failed", zap.Error(cacheErr))
	}

	s.mu.Lock()
	delete(s.dirty, dirtyKey{UserKey: userKey, ScopeKey: record.ScopeKey})
	s.mu.Unlock()
}

// StartRetryLoop 后台定时补写 dirty 记录
func (s *ProgressService) StartRetryLoop() {
	ticker := time.NewTicker(s.retryInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.retryDirty()
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *ProgressService) retryDirty() {
	s.mu.Lock()
	keys := make([]dirtyKey, 0, len(s.dirty))
	for k := range s.dirty {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	for _, k := range keys {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		record, err := s.Cache.Get(ctx, k.UserKey, k.ScopeKey)
		cancel()
		if err != nil || record == nil {
			// 缓存里已经没有副本，没法补写了
			s.mu.Lock()
			delete(s.dirty, k)
			s.mu.Unlock()
			continue
		}

		record.SyncState = model.SyncSyncing
		s.writeThrough(k.UserKey, record)
	}
}

// DirtyCount 等待补写的记录数，测试和健康检查用
func (s *ProgressService) DirtyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}

// Stop 停止后台补写
func (s *ProgressService) Stop() {
	close(s.stop)
}
