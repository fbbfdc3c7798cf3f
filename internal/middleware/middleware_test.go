package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"slicinginbox/backend/internal/monitoring"
	"slicinginbox/backend/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

type failingCounter struct{}

func (failingCounter) IncrementRateLimit(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("共享计数器固定窗口", func(t *testing.T) {
		limiter := NewRateLimiter(memory.NewStore(), 2, time.Minute, nil)
		assert.True(t, limiter.Allow(ctx, "hook:1.1.1.1"))
		assert.True(t, limiter.Allow(ctx, "hook:1.1.1.1"))
		assert.False(t, limiter.Allow(ctx, "hook:1.1.1.1"))
		assert.True(t, limiter.Allow(ctx, "hook:2.2.2.2"))
	})

	t.Run("无计数器时使用本地令牌桶", func(t *testing.T) {
		limiter := NewRateLimiter(nil, 3, time.Hour, nil)
		for i := 0; i < 3; i++ {
			assert.True(t, limiter.Allow(ctx, "k"))
		}
		assert.False(t, limiter.Allow(ctx, "k"))
	})

	t.Run("计数器故障时退回本地令牌桶", func(t *testing.T) {
		limiter := NewRateLimiter(failingCounter{}, 1, time.Hour, zap.NewNop())
		assert.True(t, limiter.Allow(ctx, "k"))
		assert.False(t, limiter.Allow(ctx, "k"))
	})

	t.Run("非法参数使用默认值", func(t *testing.T) {
		limiter := NewRateLimiter(nil, 0, 0, nil)
		assert.Equal(t, 60, limiter.Limit())
	})
}

func TestRateLimitByIP(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	limiter := NewRateLimiter(memory.NewStore(), 1, time.Minute, nil)
	limiter.SetMetrics(metrics)

	router := gin.New()
	router.POST("/hook", RateLimitByIP(limiter, "hook"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/hook", nil))
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/hook", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), `"code":429`)
	assert.Equal(t, 1.0, counterValue(t, metrics.HookRejected.WithLabelValues("rate_limited")))
}

func TestBodySizeLimit(t *testing.T) {
	router := gin.New()
	router.POST("/upload", BodySizeLimit(8), func(c *gin.Context) {
		if _, err := c.GetRawData(); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	t.Run("未超限放行", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("small")))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "8", w.Header().Get("X-Max-Body-Size"))
	})

	t.Run("Content-Length 超限直接拒绝", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("this body is too large")))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), `"code":413`)
	})
}

func TestRecoveryHandler(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.Use(RecoveryHandler(zap.NewNop(), metrics), HTTPMetrics(metrics))
	router.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1.0, counterValue(t, metrics.PanicsTotal))
}

func TestHTTPMetrics(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.Use(HTTPMetrics(metrics), SecurityHeaders(), RequestLogger(zap.NewNop()))
	router.GET("/v1/inbox/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/inbox/abc", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, 1.0, counterValue(t, metrics.HTTPRequestsTotal.WithLabelValues("GET", "/v1/inbox/:id", "200")))
	assert.Equal(t, 1.0, counterValue(t, metrics.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
