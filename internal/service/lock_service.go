package service

import (
	"context"
	"sync/atomic"
	"time"

	"exam_online_backend/internal/config"
	"exam_online_backend/internal/util"
	"exam_online_backend/pkg/logger"
	"exam_online_backend/pkg/monitoring"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type LockKind string

const (
	LockEnter  LockKind = "enter"
	LockSubmit LockKind = "submit"
)

// releaseScript 只有持有者的token能删除锁，其他情况是无效释放。
const releaseScript = `
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
else
    return 0
end`

// LockHandle 一次成功加锁的凭据。必须且只能由取得它的调用方释放一次。
type LockHandle struct {
	Key        string
	Token      string
	Kind       LockKind
	AcquiredAt time.Time
}

type lockStats struct {
	success       atomic.Int64
	failure       atomic.Int64
	totalHoldMs   atomic.Int64
	releaseMissed atomic.Int64
}

// LockService 每个 (examId, studentId) 的分布式互斥。加锁不等待，
// 带服务端租约，持有者崩溃后租约自动过期，不会死锁。
type LockService struct {
	store       Store
	metrics     *monitoring.Metrics
	enterLease  time.Duration
	submitLease time.Duration

	enterStats  lockStats
	submitStats lockStats
}

func NewLockService(store Store, cfg config.LockConfig, metrics *monitoring.Metrics) *LockService {
	return &LockService{
		store:       store,
		metrics:     metrics,
		enterLease:  time.Duration(cfg.EnterLeaseSeconds) * time.Second,
		submitLease: time.Duration(cfg.SubmitLeaseSeconds) * time.Second,
	}
}

// TryLockEnter 尝试获取进入考试锁（不等待，租约约30秒）
func (s *LockService) TryLockEnter(ctx context.Context, examID, studentID uint) (*LockHandle, bool) {
	return s.tryLock(ctx, LockEnter, util.EnterLockKey(examID, studentID), s.enterLease)
}

// TryLockSubmit 尝试获取提交考试锁（不等待，租约约10秒）
func (s *LockService) TryLockSubmit(ctx context.Context, examID, studentID uint) (*LockHandle, bool) {
	return s.tryLock(ctx, LockSubmit, util.SubmitLockKey(examID, studentID), s.submitLease)
}

func (s *LockService) tryLock(ctx context.Context, kind LockKind, key string, lease time.Duration) (*LockHandle, bool) {
	stats := s.statsFor(kind)
	start := time.Now()

	// 仅用于日志的诊断信息，授权判断只看SETNX的结果
	if held := s.isLocked(ctx, key); held {
		logger.Log.Info("[锁监控] 锁已被持有",
			zap.String("kind", string(kind)),
			zap.String("lockKey", key))
	}

	token := uuid.New().String()
	acquired, err := s.store.SetNX(ctx, key, token, lease)
	acquireTime := time.Since(start)

	if err != nil {
		// 存储不可用时按加锁失败处理（fail-closed）：没有锁就不做受保护的变更
		stats.failure.Add(1)
		s.metrics.LockAcquireTotal.WithLabelValues(string(kind), "error").Inc()
		logger.Log.Error("[锁监控] 获取锁异常",
			zap.String("kind", string(kind)),
			zap.String("lockKey", key),
			zap.Duration("acquireTime", acquireTime),
			zap.Error(err))
		return nil, false
	}

	if !acquired {
		stats.failure.Add(1)
		s.metrics.LockAcquireTotal.WithLabelValues(string(kind), "contended").Inc()
		logger.Log.Warn("[锁监控] 获取锁失败",
			zap.String("kind", string(kind)),
			zap.String("lockKey", key),
			zap.Duration("acquireTime", acquireTime),
			zap.Int64("totalSuccess", stats.success.Load()),
			zap.Int64("totalFailure", stats.failure.Load()))
		return nil, false
	}

	stats.success.Add(1)
	s.metrics.LockAcquireTotal.WithLabelValues(string(kind), "acquired").Inc()
	logger.Log.Info("[锁监控] 获取锁成功",
		zap.String("kind", string(kind)),
		zap.String("lockKey", key),
		zap.Duration("acquireTime", acquireTime),
		zap.Duration("lease", lease))

	return &LockHandle{
		Key:        key,
		Token:      token,
		Kind:       kind,
		AcquiredAt: time.Now(),
	}, true
}

// Unlock 释放锁。只有handle的持有者能真正删除key；锁已过期或被
// 他人持有时是记录日志的no-op，不是致命错误。
func (s *LockService) Unlock(ctx context.Context, h *LockHandle) {
	if h == nil {
		logger.Log.Warn("[锁监控] 释放锁失败: handle为nil")
		return
	}

	stats := s.statsFor(h.Kind)
	holdTime := time.Since(h.AcquiredAt)

	deleted, err := s.store.Eval(ctx, releaseScript, []string{h.Key}, h.Token)
	if err != nil {
		logger.Log.Error("[锁监控] 释放锁异常",
			zap.String("kind", string(h.Kind)),
			zap.String("lockKey", h.Key),
			zap.Duration("holdTime", holdTime),
			zap.Error(err))
		return
	}

	if deleted == 0 {
		// 当前调用方未持有锁（租约已过期或token不符）
		stats.releaseMissed.Add(1)
		logger.Log.Warn("[锁监控] 释放锁失败: 当前调用方未持有锁",
			zap.String("kind", string(h.Kind)),
			zap.String("lockKey", h.Key),
			zap.Duration("holdTime", holdTime))
		return
	}

	stats.totalHoldMs.Add(holdTime.Milliseconds())
	s.metrics.LockHoldSeconds.WithLabelValues(string(h.Kind)).Observe(holdTime.Seconds())

	logger.Log.Info("[锁监控] 释放锁成功",
		zap.String("kind", string(h.Kind)),
		zap.String("lockKey", h.Key),
		zap.Duration("holdTime", holdTime))

	if h.Kind == LockEnter && holdTime > 5*time.Second {
		logger.Log.Warn("[锁监控] 进入考试锁持有时间过长", zap.Duration("holdTime", holdTime))
	}
	if h.Kind == LockSubmit && holdTime > 3*time.Second {
		logger.Log.Warn("[锁监控] 提交考试锁持有时间过长", zap.Duration("holdTime", holdTime))
	}
}

func (s *LockService) isLocked(ctx context.Context, key string) bool {
	_, exists, err := s.store.Get(ctx, key)
	if err != nil {
		return false
	}
	return exists
}

func (s *LockService) statsFor(kind LockKind) *lockStats {
	if kind == LockSubmit {
		return &s.submitStats
	}
	return &s.enterStats
}

// KindStatistics 单类锁的累计统计
type KindStatistics struct {
	Success       int64
	Failure       int64
	AvgHoldTimeMs int64
}

func (k KindStatistics) FailureRate() float64 {
	total := k.Success + k.Failure
	if total == 0 {
		return 0.0
	}
	return float64(k.Failure) * 100.0 / float64(total)
}

// LockStatistics 锁监控统计信息（供监控周期输出）
type LockStatistics struct {
	Enter  KindStatistics
	Submit KindStatistics
}

func (s *LockService) Statistics() LockStatistics {
	return LockStatistics{
		Enter:  snapshotStats(&s.enterStats),
		Submit: snapshotStats(&s.submitStats),
	}
}

func snapshotStats(st *lockStats) KindStatistics {
	k := KindStatistics{
		Success: st.success.Load(),
		Failure: st.failure.Load(),
	}
	if k.Success > 0 {
		k.AvgHoldTimeMs = st.totalHoldMs.Load() / k.Success
	}
	return k
}
