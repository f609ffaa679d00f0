package service

import (
	"context"
	"time"

	"exam_online_backend/internal/config"
	"exam_online_backend/internal/util"
	"exam_online_backend/pkg/logger"
	"exam_online_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// 限流key的过期时间：空闲用户的桶状态自动回收
const rateLimitKeyTTLSeconds = 60

// tokenBucketScript 令牌桶的补充和扣减在一次原子脚本中完成。
// 两次独立的Redis调用在并发下会互相覆盖，必须用脚本。
// 返回 1 放行 / 0 拒绝 / -1 参数非法。
const tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refillRate = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local expireTime = tonumber(ARGV[5])

if not capacity or not refillRate or not interval or not now or not expireTime then
    return -1
end

local tokens = redis.call('hget', key, 'tokens')
local lastUpdate = redis.call('hget', key, 'lastUpdate')

if not tokens or tokens == false then
    tokens = capacity
    lastUpdate = now
else
    tokens = tonumber(tokens)
    lastUpdate = tonumber(lastUpdate)
    if not tokens or not lastUpdate then
        tokens = capacity
        lastUpdate = now
    else
        local elapsed = (now - lastUpdate) / 1000
        local refill = math.floor(elapsed * refillRate / interval)
        tokens = math.min(capacity, math.max(0, tokens + refill))
    end
end

local expireSeconds = math.floor(expireTime)
if expireSeconds <= 0 then
    expireSeconds = 60
end

if tokens and tokens > 0 then
    tokens = tokens - 1
    redis.call('hmset', key, 'tokens', tostring(tokens), 'lastUpdate', tostring(now))
    redis.call('expire', key, expireSeconds)
    return 1
else
    redis.call('hmset', key, 'tokens', tostring(tokens), 'lastUpdate', tostring(now))
    redis.call('expire', key, expireSeconds)
    return 0
end`

// RateLimitService 用户级别限流（Redis令牌桶）。规则进程启动时
// 加载，请求期间只读。
type RateLimitService struct {
	store   Store
	cfg     config.RateLimitConfig
	metrics *monitoring.Metrics
}

func NewRateLimitService(store Store, cfg config.RateLimitConfig, metrics *monitoring.Metrics) *RateLimitService {
	return &RateLimitService{
		store:   store,
		cfg:     cfg,
		metrics: metrics,
	}
}

// Check 检查用户在某接口类型上是否放行。不阻塞，单次Redis往返。
// 被限流时返回 *util.RateLimitError；Redis故障时降级放行（fail-open）。
func (s *RateLimitService) Check(ctx context.Context, userID uint, operationType string) error {
	if !s.cfg.Enabled {
		return nil
	}

	rule, ok := s.cfg.Rules[operationType]
	if !ok || !rule.Enabled {
		return nil
	}

	key := util.RateLimitKey(operationType, userID)
	now := time.Now().UnixMilli()

	result, err := s.store.Eval(ctx, tokenBucketScript,
		[]string{key},
		rule.Capacity,
		rule.RefillRate,
		rule.Interval,
		now,
		rateLimitKeyTTLSeconds,
	)
	if err != nil {
		// Redis故障时降级：允许通过，记录告警
		s.metrics.RateLimitTotal.WithLabelValues(operationType, "error").Inc()
		logger.Log.Error("[限流监控] 限流检查异常，降级允许通过",
			zap.Uint("userId", userID),
			zap.String("operationType", operationType),
			zap.String("key", key),
			zap.Error(err))
		return nil
	}

	if result != 1 {
		s.metrics.RateLimitTotal.WithLabelValues(operationType, "rejected").Inc()
		logger.Log.Warn("[限流监控] 用户级别限流触发",
			zap.Uint("userId", userID),
			zap.String("operationType", operationType),
			zap.String("key", key),
			zap.Int("capacity", rule.Capacity))
		return &util.RateLimitError{RetryAfter: time.Duration(rule.Interval) * time.Second}
	}

	s.metrics.RateLimitTotal.WithLabelValues(operationType, "allowed").Inc()
	logger.Log.Debug("[限流监控] 用户级别限流检查通过",
		zap.Uint("userId", userID),
		zap.String("operationType", operationType))
	return nil
}
