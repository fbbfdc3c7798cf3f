package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"slicinginbox/backend/internal/storage"
)

const (
	checkTimeout  = 3 * time.Second
	maxGoroutines = 10000
)

// PingFunc 依赖探活函数
type PingFunc func(ctx context.Context) error

// HealthChecker 健康检查器：存活检查只看进程本身，就绪检查覆盖存储与外部依赖
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Store
	logger *zap.Logger

	mu     sync.RWMutex
	checks map[string]healthcheck.Check
}

// NewHealthChecker 创建健康检查器；registry 不为空时同时导出检查结果指标
func NewHealthChecker(store storage.Store, logger *zap.Logger, registry prometheus.Registerer) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}

	var handler healthcheck.Handler
	if registry != nil {
		handler = healthcheck.NewMetricsHandler(registry, "slicing_inbox")
	} else {
		handler = healthcheck.NewHandler()
	}

	hc := &HealthChecker{
		health: handler,
		store:  store,
		logger: logger,
		checks: make(map[string]healthcheck.Check),
	}

	hc.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(maxGoroutines))
	hc.AddReadinessCheck("store", func(context.Context) error {
		return hc.store.Health()
	})

	return hc
}

// AddReadinessCheck 注册就绪检查（例如目录库连接池）
func (hc *HealthChecker) AddReadinessCheck(name string, ping PingFunc) {
	check := healthcheck.Timeout(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		return ping(ctx)
	}, checkTimeout)

	hc.mu.Lock()
	hc.checks[name] = check
	hc.mu.Unlock()

	hc.health.AddReadinessCheck(name, check)
}

// LiveHandler 存活探针
func (hc *HealthChecker) LiveHandler() http.HandlerFunc {
	return hc.health.LiveEndpoint
}

// ReadyHandler 就绪探针
func (hc *HealthChecker) ReadyHandler() http.HandlerFunc {
	return hc.health.ReadyEndpoint
}

// CheckHealth 执行所有就绪检查，返回每项结果与整体是否健康
func (hc *HealthChecker) CheckHealth() (map[string]string, bool) {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]healthcheck.Check, len(names))
	for i, name := range names {
		checks[i] = hc.checks[name]
	}
	hc.mu.RUnlock()

	results := make(map[string]string, len(names)+1)
	healthy := true
	for i, name := range names {
		if err := checks[i](); err != nil {
			healthy = false
			results[name] = fmt.Sprintf("ERROR: %v", err)
			hc.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		results[name] = "OK"
	}
	results["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	return results, healthy
}
