package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"slicinginbox/backend/internal/monitoring"
	"slicinginbox/backend/internal/storage"
)

const maxLocalLimiters = 10000

// RateLimiter 按客户端限流。
//
// 配置了共享计数器（Redis 或内存存储）时使用固定窗口计数；
// 否则或计数器故障时退回进程内令牌桶。
type RateLimiter struct {
	counter storage.RateLimitRepository
	limit   int
	window  time.Duration
	log     *zap.Logger
	metrics *monitoring.Metrics

	mu    sync.Mutex
	local map[string]*localLimiter
}

type localLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter 创建限流器；counter 可为 nil
func NewRateLimiter(counter storage.RateLimitRepository, limit int, window time.Duration, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		counter: counter,
		limit:   limit,
		window:  window,
		log:     log,
		local:   make(map[string]*localLimiter),
	}
}

// SetMetrics 设置监控指标
func (l *RateLimiter) SetMetrics(metrics *monitoring.Metrics) {
	l.metrics = metrics
}

// Limit 每个窗口允许的请求数
func (l *RateLimiter) Limit() int {
	return l.limit
}

// Allow 判断 key 本次请求是否放行
func (l *RateLimiter) Allow(ctx context.Context, key string) bool {
	if l.counter != nil {
		count, err := l.counter.IncrementRateLimit(ctx, key, l.window)
		if err == nil {
			return count <= int64(l.limit)
		}
		l.log.Warn("rate limit counter unavailable, using local limiter",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return l.allowLocal(key)
}

func (l *RateLimiter) allowLocal(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	entry, ok := l.local[key]
	if !ok {
		if len(l.local) >= maxLocalLimiters {
			l.pruneLocked(now)
		}
		every := l.window / time.Duration(l.limit)
		entry = &localLimiter{limiter: rate.NewLimiter(rate.Every(every), l.limit)}
		l.local[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// pruneLocked 清理超过一个窗口未访问的令牌桶，调用方持有锁
func (l *RateLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.local {
		if now.Sub(entry.lastSeen) > l.window {
			delete(l.local, key)
		}
	}
}

// RateLimitByIP 按客户端 IP 限流的中间件，scope 区分不同端点的计数
func RateLimitByIP(limiter *RateLimiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":" + c.ClientIP()
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))

		if !limiter.Allow(c.Request.Context(), key) {
			limiter.metrics.RecordHookRejected("rate_limited")
			limiter.log.Warn("rate limit exceeded",
				zap.String("scope", scope),
				zap.String("ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": http.StatusTooManyRequests,
				"msg":  "请求过于频繁，请稍后重试",
			})
			return
		}

		c.Next()
	}
}
