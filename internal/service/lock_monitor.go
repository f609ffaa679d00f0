package service

import (
	"time"

	"exam_online_backend/pkg/logger"

	"go.uber.org/zap"
)

const lockMonitorInterval = 5 * time.Minute

// LockMonitor 定期输出锁的统计信息，用于发现锁竞争劣化。
// 只做观测，不影响加锁行为。
type LockMonitor struct {
	locks *LockService
	stop  chan struct{}
}

func NewLockMonitor(locks *LockService) *LockMonitor {
	return &LockMonitor{
		locks: locks,
		stop:  make(chan struct{}),
	}
}

func (m *LockMonitor) Start() {
	go func() {
		ticker := time.NewTicker(lockMonitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.logStatistics()
			}
		}
	}()
}

func (m *LockMonitor) Stop() {
	close(m.stop)
}

func (m *LockMonitor) logStatistics() {
	stats := m.locks.Statistics()

	logger.Log.Info("[锁监控统计] 进入考试锁",
		zap.Int64("success", stats.Enter.Success),
		zap.Int64("failure", stats.Enter.Failure),
		zap.Float64("failureRate", stats.Enter.FailureRate()),
		zap.Int64("avgHoldTimeMs", stats.Enter.AvgHoldTimeMs))

	logger.Log.Info("[锁监控统计] 提交考试锁",
		zap.Int64("success", stats.Submit.Success),
		zap.Int64("failure", stats.Submit.Failure),
		zap.Float64("failureRate", stats.Submit.FailureRate()),
		zap.Int64("avgHoldTimeMs", stats.Submit.AvgHoldTimeMs))

	if stats.Enter.FailureRate() > 10.0 {
		logger.Log.Warn("[锁监控告警] 进入考试锁失败率过高",
			zap.Float64("failureRate", stats.Enter.FailureRate()))
	}
	if stats.Submit.FailureRate() > 10.0 {
		logger.Log.Warn("[锁监控告警] 提交考试锁失败率过高",
			zap.Float64("failureRate", stats.Submit.FailureRate()))
	}
	if stats.Enter.AvgHoldTimeMs > 5000 {
		logger.Log.Warn("[锁监控告警] 进入考试锁平均持有时间过长",
			zap.Int64("avgHoldTimeMs", stats.Enter.AvgHoldTimeMs))
	}
	if stats.Submit.AvgHoldTimeMs > 3000 {
		logger.Log.Warn("[锁监控告警] 提交考试锁平均持有时间过长",
			zap.Int64("avgHoldTimeMs", stats.Submit.AvgHoldTimeMs))
	}
}
