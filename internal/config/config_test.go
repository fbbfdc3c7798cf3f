package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	envKeys := []string{
		"SLICER_HOOK_SECRET",
		"SLICER_SERVER_PORT",
		"SLICER_INBOX_DEDUP_WINDOW",
		"SLICER_INBOX_PENDING_LIMIT",
		"SLICER_INBOX_LINKED_LIMIT",
		"SLICER_DATABASE_TYPE",
		"SLICER_DATABASE_DSN",
		"SLICER_CORS_ALLOWED_ORIGINS",
		"SLICER_INBOX_SEED_PRODUCTS",
	}

	// 保存原始环境变量，测试后恢复
	originalEnvs := make(map[string]string)
	for _, key := range envKeys {
		originalEnvs[key] = os.Getenv(key)
	}
	defer func() {
		for key, value := range originalEnvs {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	reset := func() {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
		os.Setenv("SLICER_HOOK_SECRET", "hook-secret-for-tests-0001")
	}

	t.Run("加载默认配置成功", func(t *testing.T) {
		reset()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Minute, cfg.Inbox.DedupWindow)
		assert.Equal(t, 50, cfg.Inbox.PendingLimit)
		assert.Equal(t, 20, cfg.Inbox.LinkedLimit)
		assert.Equal(t, time.Minute, cfg.Hook.RateWindow)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Empty(t, cfg.Database.Type)
		assert.Empty(t, cfg.Inbox.SeedProducts)
	})

	t.Run("环境变量覆盖默认值", func(t *testing.T) {
		reset()
		os.Setenv("SLICER_SERVER_PORT", "9090")
		os.Setenv("SLICER_INBOX_DEDUP_WINDOW", "10m")
		os.Setenv("SLICER_INBOX_PENDING_LIMIT", "5")
		os.Setenv("SLICER_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
		os.Setenv("SLICER_INBOX_SEED_PRODUCTS", "prod-1, prod-2")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 10*time.Minute, cfg.Inbox.DedupWindow)
		assert.Equal(t, 5, cfg.Inbox.PendingLimit)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, []string{"prod-1", "prod-2"}, cfg.Inbox.SeedProducts)
	})

	t.Run("非正数列表上限回退为默认值", func(t *testing.T) {
		reset()
		os.Setenv("SLICER_INBOX_LINKED_LIMIT", "0")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 20, cfg.Inbox.LinkedLimit)
	})

	t.Run("共享密钥过短", func(t *testing.T) {
		reset()
		os.Setenv("SLICER_HOOK_SECRET", "short")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "hook secret")
	})

	t.Run("无效的去重窗口", func(t *testing.T) {
		reset()
		os.Setenv("SLICER_INBOX_DEDUP_WINDOW", "soon")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("不支持的数据库类型", func(t *testing.T) {
		reset()
		os.Setenv("SLICER_DATABASE_TYPE", "sqlite")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("数据库类型缺少连接串", func(t *testing.T) {
		reset()
		os.Setenv("SLICER_DATABASE_TYPE", "postgres")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseList(" a, ,b "))
	assert.Empty(t, parseList(""))
}
